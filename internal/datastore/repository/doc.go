// Package repository provides the persistence operations of the pipeline on
// top of GORM.
//
// Repositories never leak gorm.ErrRecordNotFound; lookups that find nothing
// return the sentinel errors in errors.go. Every other database failure is
// returned as an *errors.EnhancedError with category database.
//
// All methods are safe for concurrent use.
package repository
