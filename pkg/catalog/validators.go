package catalog

type ListAlbumsQuery struct {
	OrderBy string `query:"order_by" json:"order_by,omitempty" default:"title" validate:"oneof=title artist"`
	Genre   string `query:"genre" json:"genre,omitempty" validate:"max=100"`
	Year    int    `query:"year" json:"year,omitempty" validate:"min=0,max=9999"`
	Studio  string `query:"studio" json:"studio,omitempty" validate:"max=200"`
	Limit   int    `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=500"`
	Offset  int    `query:"offset" json:"offset,omitempty" validate:"min=0"`
}
