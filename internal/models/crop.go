package models

import "fmt"

// CropSettings describes an optional percentage sub-rectangle applied to
// every screenshot. Coordinates are percentages of the rendered image.
type CropSettings struct {
	Enabled bool `json:"enabled"`
	X1      int  `json:"x1_percent"`
	Y1      int  `json:"y1_percent"`
	X2      int  `json:"x2_percent"`
	Y2      int  `json:"y2_percent"`
}

// NewCropSettings constructs an enabled crop configuration, enforcing
// 0 <= x1 < x2 <= 100 and 0 <= y1 < y2 <= 100.
func NewCropSettings(x1, y1, x2, y2 int) (CropSettings, error) {
	c := CropSettings{Enabled: true, X1: x1, Y1: y1, X2: x2, Y2: y2}
	if err := c.Validate(); err != nil {
		return CropSettings{}, err
	}
	return c, nil
}

// Validate checks the coordinate preconditions. Disabled crops are always
// valid.
func (c CropSettings) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.X1 < 0 || c.X2 > 100 || c.X1 >= c.X2 {
		return fmt.Errorf("invalid crop x bounds: need 0 <= x1 < x2 <= 100, got x1=%d x2=%d", c.X1, c.X2)
	}
	if c.Y1 < 0 || c.Y2 > 100 || c.Y1 >= c.Y2 {
		return fmt.Errorf("invalid crop y bounds: need 0 <= y1 < y2 <= 100, got y1=%d y2=%d", c.Y1, c.Y2)
	}
	return nil
}
