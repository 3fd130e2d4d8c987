package vector

// ToSparse converts v to sparse storage, keeping only coordinates whose
// absolute value exceeds eps. If v is already sparse, returns an
// equivalent sparse vector filtered the same way.
func (v *Vector) ToSparse(eps float32) *Vector {
	var idx []int32
	var val []float32

	if v.sparse {
		for pos, i := range v.indexes {
			x := v.values[pos]
			if absf32(x) > eps {
				idx = append(idx, i)
				val = append(val, x)
			}
		}
	} else {
		for i, x := range v.dense {
			if absf32(x) > eps {
				idx = append(idx, int32(i))
				val = append(val, x)
			}
		}
	}

	out := &Vector{sparse: true, indexes: idx, values: val}
	out.hashIdx = buildSparseHashIndex(idx)
	return out
}

// ToDense converts v to a dense vector of the given size. Coordinates
// beyond size are dropped; coordinates not present are implicitly zero.
func (v *Vector) ToDense(size int) *Vector {
	out := make([]float32, size)
	if !v.sparse {
		n := len(v.dense)
		if n > size {
			n = size
		}
		copy(out, v.dense[:n])
		return NewDense(out)
	}
	for pos, i := range v.indexes {
		if int(i) >= 0 && int(i) < size {
			out[i] = v.values[pos]
		}
	}
	return NewDense(out)
}
