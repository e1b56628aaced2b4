package chain

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// fields reads typed values out of an unpacked log. The first failure is
// kept in err and later reads return zero values.
type fields struct {
	event string
	m     map[string]any
	err   error
}

func (f *fields) get(key string) (any, bool) {
	if f.err != nil {
		return nil, false
	}
	v, ok := f.m[key]
	if !ok {
		f.err = fmt.Errorf("%w: %s has no field %q", domain.ErrDecode, f.event, key)
	}
	return v, ok
}

func (f *fields) fail(key string, v any) {
	f.err = fmt.Errorf("%w: %s field %q has type %T", domain.ErrDecode, f.event, key, v)
}

func (f *fields) address(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}
	a, ok := v.(common.Address)
	if !ok {
		f.fail(key, v)
		return ""
	}
	return lowerHex(a)
}

func (f *fields) addresses(key string) []string {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	as, ok := v.([]common.Address)
	if !ok {
		f.fail(key, v)
		return nil
	}
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = lowerHex(a)
	}
	return out
}

func (f *fields) hash(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}
	switch h := v.(type) {
	case [32]byte:
		return common.Hash(h).Hex()
	case common.Hash:
		return h.Hex()
	default:
		f.fail(key, v)
		return ""
	}
}

func (f *fields) hashes(key string) []string {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	hs, ok := v.([][32]byte)
	if !ok {
		f.fail(key, v)
		return nil
	}
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = common.Hash(h).Hex()
	}
	return out
}

func (f *fields) bigint(key string) *big.Int {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n)
	case uint8:
		return new(big.Int).SetUint64(uint64(n))
	case uint32:
		return new(big.Int).SetUint64(uint64(n))
	case uint64:
		return new(big.Int).SetUint64(n)
	default:
		f.fail(key, v)
		return nil
	}
}

func (f *fields) bigints(key string) []*big.Int {
	v, ok := f.get(key)
	if !ok {
		return nil
	}
	ns, ok := v.([]*big.Int)
	if !ok {
		f.fail(key, v)
		return nil
	}
	out := make([]*big.Int, len(ns))
	for i, n := range ns {
		out[i] = new(big.Int).Set(n)
	}
	return out
}

// int64 reads an unsigned integer that must fit in an int64.
func (f *fields) int64(key string) int64 {
	n := f.bigint(key)
	if n == nil {
		return 0
	}
	if !n.IsInt64() {
		f.err = fmt.Errorf("%w: %s field %q overflows int64", domain.ErrDecode, f.event, key)
		return 0
	}
	return n.Int64()
}

func (f *fields) int(key string) int {
	n := f.int64(key)
	if n > math.MaxInt32 {
		f.err = fmt.Errorf("%w: %s field %q out of range", domain.ErrDecode, f.event, key)
		return 0
	}
	return int(n)
}

func (f *fields) str(key string) string {
	v, ok := f.get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(key, v)
	}
	return s
}

func (f *fields) boolean(key string) bool {
	v, ok := f.get(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		f.fail(key, v)
	}
	return b
}

// tuple copies the unpacked struct at key into dst, a pointer to a struct
// whose fields line up with the tuple components.
func (f *fields) tuple(key string, dst any) {
	v, ok := f.get(key)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.err = fmt.Errorf("%w: %s field %q: %v", domain.ErrDecode, f.event, key, r)
		}
	}()
	abi.ConvertType(v, dst)
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}
