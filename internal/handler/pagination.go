package handler

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// pageLimit applies the default to an unset limit and caps large ones
func pageLimit(requested int) int {
	switch {
	case requested <= 0:
		return defaultPageSize
	case requested > maxPageSize:
		return maxPageSize
	}
	return requested
}
