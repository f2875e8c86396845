package ir

import (
	"encoding/binary"
	"math"

	"github.com/minio/highwayhash"
)

// hashKey is the fixed HighwayHash key for structural hashing. The hash is
// an in-process fast path for equality checks; it carries no security
// meaning.
var hashKey = make([]byte, 32)

// StructuralHash computes a 64-bit hash over the structure of e. Equal
// expressions (per StructuralEqual) hash equally; variables contribute their
// names, so distinct variables sharing a name may collide. Callers confirm
// with StructuralEqual.
func StructuralHash(e Expr) uint64 {
	h, _ := highwayhash.New64(hashKey)
	enc := &hashEncoder{buf: make([]byte, 0, 256)}
	enc.expr(e)
	_, _ = h.Write(enc.buf)
	return h.Sum64()
}

type hashEncoder struct {
	buf []byte
}

func (enc *hashEncoder) tag(t byte) { enc.buf = append(enc.buf, t) }

func (enc *hashEncoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	enc.buf = append(enc.buf, b[:]...)
}

func (enc *hashEncoder) str(s string) {
	enc.u64(uint64(len(s)))
	enc.buf = append(enc.buf, s...)
}

func (enc *hashEncoder) expr(e Expr) {
	switch n := e.(type) {
	case nil:
		enc.tag(0)
	case *Var:
		enc.tag(1)
		enc.str(n.Name)
	case *IntImm:
		enc.tag(2)
		enc.u64(uint64(n.Value))
	case *FloatImm:
		enc.tag(3)
		enc.u64(math.Float64bits(n.Value))
	case *StringImm:
		enc.tag(4)
		enc.str(n.Value)
	case *Cast:
		enc.tag(5)
		enc.str(n.T.String())
		enc.expr(n.Value)
	case *Add:
		enc.tag(6)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Sub:
		enc.tag(7)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Mul:
		enc.tag(8)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Div:
		enc.tag(9)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Mod:
		enc.tag(10)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Min:
		enc.tag(11)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Max:
		enc.tag(12)
		enc.expr(n.A)
		enc.expr(n.B)
	case *EQ:
		enc.tag(13)
		enc.expr(n.A)
		enc.expr(n.B)
	case *NE:
		enc.tag(14)
		enc.expr(n.A)
		enc.expr(n.B)
	case *LT:
		enc.tag(15)
		enc.expr(n.A)
		enc.expr(n.B)
	case *LE:
		enc.tag(16)
		enc.expr(n.A)
		enc.expr(n.B)
	case *GT:
		enc.tag(17)
		enc.expr(n.A)
		enc.expr(n.B)
	case *GE:
		enc.tag(18)
		enc.expr(n.A)
		enc.expr(n.B)
	case *And:
		enc.tag(19)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Or:
		enc.tag(20)
		enc.expr(n.A)
		enc.expr(n.B)
	case *Not:
		enc.tag(21)
		enc.expr(n.A)
	case *Select:
		enc.tag(22)
		enc.expr(n.Cond)
		enc.expr(n.TrueValue)
		enc.expr(n.FalseValue)
	case *Call:
		enc.tag(23)
		enc.str(n.Name)
		enc.u64(uint64(n.Kind))
		enc.u64(uint64(n.ValueIndex))
		enc.u64(uint64(len(n.Args)))
		for _, a := range n.Args {
			enc.expr(a)
		}
	case *Reduce:
		enc.tag(24)
		enc.u64(uint64(n.ValueIndex))
		enc.u64(uint64(len(n.Source)))
		for _, s := range n.Source {
			enc.expr(s)
		}
		enc.u64(uint64(len(n.Axis)))
		for _, iv := range n.Axis {
			enc.str(iv.Var.Name)
		}
		enc.expr(n.Condition)
	default:
		enc.tag(255)
	}
}
