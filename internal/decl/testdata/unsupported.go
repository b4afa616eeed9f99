package testdata

type Blob struct {
	ID   int64
	Data map[string]int
}
