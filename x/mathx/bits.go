package mathx

// Field is a bit field [Shift, Shift+Width) of a 32-bit register word.
type Field struct {
	Shift uint8
	Width uint8
}

// Bit returns a one-bit field at n.
func Bit(n uint8) Field { return Field{Shift: n, Width: 1} }

// Mask returns the in-place mask of the field.
func (f Field) Mask() uint32 {
	if f.Width >= 32 {
		return ^uint32(0)
	}
	return ((uint32(1) << f.Width) - 1) << f.Shift
}

// Max is the largest value the field can hold.
func (f Field) Max() uint32 { return f.Mask() >> f.Shift }

// Fits reports whether v can be stored without truncation.
func (f Field) Fits(v uint32) bool { return v <= f.Max() }

// Get extracts the field from w.
func (f Field) Get(w uint32) uint32 { return (w & f.Mask()) >> f.Shift }

// Set returns w with the field replaced by v (truncated to the field width).
func (f Field) Set(w, v uint32) uint32 {
	return (w &^ f.Mask()) | ((v << f.Shift) & f.Mask())
}

// Flag returns w with a one-bit field set or cleared.
func (f Field) Flag(w uint32, on bool) uint32 {
	if on {
		return f.Set(w, 1)
	}
	return f.Set(w, 0)
}

// On reports whether any bit of the field is set in w.
func (f Field) On(w uint32) bool { return w&f.Mask() != 0 }
