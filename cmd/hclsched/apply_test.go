package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestApplyCmd_RendersScheduledStages(t *testing.T) {
	t.Parallel()

	path := writePlan(t, `
graph: gemm
primitives:
  - op: split
    stage: C
    axis: k
    factor: 8
  - op: cache_read
    tensor: A
    scope: shared
    readers: [C]
`)
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"apply", "--no-color", path})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	require.Contains(t, out, "A.shared")
	require.Contains(t, out, "for k.outer")
	require.Contains(t, out, "for k.inner")
}

func TestApplyCmd_NormalizeRendersOutputStage(t *testing.T) {
	t.Parallel()

	path := writePlan(t, `
graph: blur
primitives: []
`)
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"apply", "--no-color", "--normalize", path})

	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "blur [output]")
}

func TestApplyCmd_BadPlanFails(t *testing.T) {
	t.Parallel()

	path := writePlan(t, "graph: nonexistent\n")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"apply", path})

	require.Error(t, cmd.Execute())
}

func TestShowCmd_ListsGraphs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"show"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "gemm")
}

func TestVersionCmd_PrintsVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "hclsched")
}
