// internal/utils/pagination.go
package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PaginationParams struct {
	Page   int    `form:"page" json:"page"`
	Limit  int    `form:"limit" json:"limit"`
	Sort   string `form:"sort" json:"sort"`
	Order  string `form:"order" json:"order"`
	Status string `form:"status" json:"status"`
}

func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

type PaginationResult struct {
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
	Data       interface{} `json:"data"`
}

// GetPaginationParams reads the list query string. Malformed values fall back
// to the defaults instead of failing the request.
func GetPaginationParams(c *gin.Context) PaginationParams {
	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		params = PaginationParams{Status: c.Query("status")}
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 || params.Limit > maxPageSize {
		params.Limit = defaultPageSize
	}
	if params.Sort == "" {
		params.Sort = "created_at"
	}
	if params.Order != "asc" {
		params.Order = "desc"
	}
	return params
}

func ApplyPagination(db *gorm.DB, params PaginationParams) *gorm.DB {
	return db.Offset(params.Offset()).Limit(params.Limit)
}

// ApplySort maps the public sort key onto a column. Unknown keys sort by
// created_at; id breaks ties so pages do not overlap.
func ApplySort(db *gorm.DB, params PaginationParams, columns map[string]string) *gorm.DB {
	column, ok := columns[params.Sort]
	if !ok {
		column = "created_at"
	}
	order := "desc"
	if params.Order == "asc" {
		order = "asc"
	}
	return db.Order(column + " " + order).Order("id " + order)
}

func CreatePaginationResult(data interface{}, total int64, params PaginationParams) PaginationResult {
	totalPages := 0
	if params.Limit > 0 {
		totalPages = int((total + int64(params.Limit) - 1) / int64(params.Limit))
	}

	return PaginationResult{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: totalPages,
		Data:       data,
	}
}

func SetPaginationHeaders(c *gin.Context, result PaginationResult) {
	c.Header("X-Total-Count", strconv.FormatInt(result.Total, 10))
	c.Header("X-Page", strconv.Itoa(result.Page))
	c.Header("X-Per-Page", strconv.Itoa(result.Limit))
	c.Header("X-Total-Pages", strconv.Itoa(result.TotalPages))
}
