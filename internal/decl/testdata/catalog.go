package testdata

type Category struct {
	ID     int64
	Name   string `db:"name,size=64"`
	Rank   *int   `db:"rank"`
	Tags   []Tag  `rel:"many_to_many,cached"`
	secret string
}

func (Category) TableName() string { return "catalog_categories" }

type Product struct {
	ID       int64     `db:"id,primaryKey"`
	Title    string    `db:"title,default=untitled"`
	Price    float64   `db:"price"`
	Active   bool      `db:"active"`
	Category *Category `rel:"belongs_to"`
	Label    string    `inherit:"category.name"`
	Rank     int       `inherit:"category,only"`
	Tags     []Tag     `inherit:"category"`
	Note     string    `db:"-"`
}

type Tag struct {
	ID    int64
	Label string
}

// Helper has no exported fields and is skipped.
type Helper struct {
	n int
}
