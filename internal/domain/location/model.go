// Package location serves the province, district and ward hierarchy and
// implements the cascading selector that binds one location to a form.
package location

import (
	"errors"
	"fmt"
)

type Province struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type District struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProvinceID string `json:"province_id"`
}

type Ward struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DistrictID string `json:"district_id"`
}

// Level identifies one tier of the hierarchy.
type Level int

const (
	LevelProvince Level = iota
	LevelDistrict
	LevelWard
)

var levels = [...]Level{LevelProvince, LevelDistrict, LevelWard}

func (l Level) String() string {
	switch l {
	case LevelProvince:
		return "province"
	case LevelDistrict:
		return "district"
	case LevelWard:
		return "ward"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

var (
	ErrNotFound         = errors.New("location not found")
	ErrInvalid          = errors.New("invalid location")
	ErrUnknownOption    = errors.New("option is not in the current list")
	ErrNoParent         = errors.New("parent level has no selection")
	ErrSuperseded       = errors.New("fetch superseded by a newer request")
	ErrInvalidComposite = errors.New("invalid composite location value")
)

// FetchError reports a failed list lookup for one level. The selector keeps
// an empty list for that level until Retry succeeds.
type FetchError struct {
	Level Level
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s list: %v", e.Level, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
