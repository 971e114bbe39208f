package lpbam

import (
	"strconv"
	"strings"

	"lpbam-go/dma"
	"lpbam-go/errcode"
	"lpbam-go/periph"
)

// Params carries decoded configuration for an operation factory. Values come
// from YAML (ints, floats, strings, bools) or are injected by the caller
// (dma.Region for buffers, *dma.Queue for queue references).
type Params map[string]any

func bad(key, why string) error {
	return errcode.New(errcode.InvalidParams, "lpbam.params", key+": "+why)
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Uint returns key as an unsigned integer, def when absent. Strings are
// parsed with base prefixes ("0x10", "0b101").
func (p Params) Uint(key string, def uint32) (uint32, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, bad(key, "negative")
		}
		if int64(x) > 0xFFFF_FFFF {
			return 0, bad(key, "out of range")
		}
		return uint32(x), nil
	case int64:
		if x < 0 || x > 0xFFFF_FFFF {
			return 0, bad(key, "out of range")
		}
		return uint32(x), nil
	case uint64:
		if x > 0xFFFF_FFFF {
			return 0, bad(key, "out of range")
		}
		return uint32(x), nil
	case uint32:
		return x, nil
	case uint16:
		return uint32(x), nil
	case uint8:
		return uint32(x), nil
	case float64:
		if x < 0 || x > 0xFFFF_FFFF || x != float64(uint32(x)) {
			return 0, bad(key, "not an unsigned integer")
		}
		return uint32(x), nil
	case string:
		n, err := strconv.ParseUint(strings.ReplaceAll(x, "_", ""), 0, 32)
		if err != nil {
			return 0, bad(key, "not an unsigned integer")
		}
		return uint32(n), nil
	}
	return 0, bad(key, "not an unsigned integer")
}

// UintMax is Uint with an upper bound.
func (p Params) UintMax(key string, def, max uint32) (uint32, error) {
	v, err := p.Uint(key, def)
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, bad(key, "out of range")
	}
	return v, nil
}

// Bool returns key as a bool, def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, bad(key, "not a bool")
		}
		return b, nil
	}
	return false, bad(key, "not a bool")
}

// String returns key as a string, def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", bad(key, "not a string")
	}
	return s, nil
}

// Instance resolves key to a peripheral instance of family f. A missing key
// yields the first instance of the family.
func (p Params) Instance(key string, f periph.Family) (periph.Instance, error) {
	v, ok := p[key]
	if !ok || v == nil {
		if all := periph.Instances(f); len(all) > 0 {
			return all[0], nil
		}
		return periph.InstanceNone, bad(key, "missing")
	}
	var inst periph.Instance
	switch x := v.(type) {
	case periph.Instance:
		inst = x
	case string:
		i, ok := periph.ParseInstance(x)
		if !ok {
			return periph.InstanceNone, bad(key, "unknown instance "+x)
		}
		inst = i
	default:
		return periph.InstanceNone, bad(key, "not an instance name")
	}
	if !inst.Is(f) {
		return periph.InstanceNone, bad(key, inst.String()+" is not a "+f.String()+" instance")
	}
	return inst, nil
}

// Region returns key as a buffer. Accepted forms are a dma.Region or a map
// with "addr" and "size".
func (p Params) Region(key string) (dma.Region, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return dma.Region{}, bad(key, "missing buffer")
	}
	switch x := v.(type) {
	case dma.Region:
		return x, nil
	case map[string]any:
		sub := Params(x)
		addr, err := sub.Uint("addr", 0)
		if err != nil {
			return dma.Region{}, err
		}
		size, err := sub.Uint("size", 0)
		if err != nil {
			return dma.Region{}, err
		}
		return dma.Region{Addr: addr, Size: size}, nil
	}
	return dma.Region{}, bad(key, "not a buffer")
}

// Queue returns key as a queue reference.
func (p Params) Queue(key string) (*dma.Queue, error) {
	q, ok := p[key].(*dma.Queue)
	if !ok || q == nil {
		return nil, bad(key, "missing queue reference")
	}
	return q, nil
}

// Uints returns key as a list of unsigned integers.
func (p Params) Uints(key string) ([]uint32, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []int:
		for _, i := range x {
			items = append(items, i)
		}
	case []uint32:
		return append([]uint32(nil), x...), nil
	default:
		return nil, bad(key, "not a list")
	}
	out := make([]uint32, 0, len(items))
	for i, it := range items {
		n, err := Params{key: it}.Uint(key, 0)
		if err != nil {
			return nil, bad(key, "item "+strconv.Itoa(i)+" is not an unsigned integer")
		}
		out = append(out, n)
	}
	return out, nil
}

// Trigger decodes a {signal, polarity, mode} map under key. ok is false when
// the key is absent.
func (p Params) Trigger(key string) (t dma.Trigger, ok bool, err error) {
	v, present := p[key]
	if !present || v == nil {
		return dma.Trigger{}, false, nil
	}
	m, isMap := v.(map[string]any)
	if !isMap {
		return dma.Trigger{}, false, bad(key, "not a map")
	}
	sub := Params(m)
	name, err := sub.String("signal", "")
	if err != nil {
		return dma.Trigger{}, false, err
	}
	sig, found := periph.ParseSignal(name)
	if !found {
		return dma.Trigger{}, false, bad(key, "unknown signal "+name)
	}
	t.Signal = sig
	pol, err := sub.String("polarity", "rising")
	if err != nil {
		return dma.Trigger{}, false, err
	}
	if t.Polarity, found = dma.ParsePolarity(pol); !found {
		return dma.Trigger{}, false, bad(key, "unknown polarity "+pol)
	}
	mode, err := sub.String("mode", "block")
	if err != nil {
		return dma.Trigger{}, false, err
	}
	if t.Mode, found = dma.ParseMode(mode); !found {
		return dma.Trigger{}, false, bad(key, "unknown mode "+mode)
	}
	return t, true, t.Validate()
}
