package testdata

type Legacy struct {
	Code string `db:"code,primaryKey"`
}
