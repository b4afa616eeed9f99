package testdata

type Broken struct {
	ID     int64
	Parent *Broken `rel:"has_many"`
}
