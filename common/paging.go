package common

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type PageQuery struct {
	Skip   int    `form:"skip" binding:"omitempty,gte=0"`
	Limit  int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
	Search string `form:"search" binding:"omitempty,lte=255"`
}

// Normalize fills the defaults a client omitted.
func (q PageQuery) Normalize() PageQuery {
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

type Page struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
	Skip  int         `json:"skip"`
	Limit int         `json:"limit"`
}
