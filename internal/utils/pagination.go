// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Paging is a normalized 1-based page request.
type Paging struct {
	Page     int
	PageSize int
}

// Offset is the number of rows to skip.
func (p Paging) Offset() int { return (p.Page - 1) * p.PageSize }

// ParsePaging reads page and page_size query values. Unparseable or
// non-positive values fall back to page 1 and defSize; page_size is capped
// at maxSize.
func ParsePaging(page, size string, defSize, maxSize int) Paging {
	p := Paging{Page: AtoiDefault(page, 1), PageSize: AtoiDefault(size, defSize)}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defSize
	}
	if maxSize > 0 && p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	return p
}

// TotalPages returns ceil(total/size), at least 1.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}
