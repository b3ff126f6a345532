package utils

// Ptr returns a pointer to v, for optional request fields set from literals:
//
//	request.Temperature = utils.Ptr(0.8)
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or fallback when p is nil.
func Deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
