package domain

import (
	"math"
	"strings"
)

// SortDirection задаёт направление сортировки.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection: "asc" без учёта регистра сортирует по возрастанию, всё остальное по убыванию.
func ParseSortDirection(raw string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// OrderSortField — поле, по которому разрешено сортировать заказы.
type OrderSortField string

const (
	SortByOrderID     OrderSortField = "orderId"
	SortByEmail       OrderSortField = "email"
	SortByOrderDate   OrderSortField = "orderDate"
	SortByTotalAmount OrderSortField = "totalAmount"
	SortByOrderStatus OrderSortField = "orderStatus"
)

// ParseOrderSortField проверяет поле сортировки по белому списку.
func ParseOrderSortField(raw string) (OrderSortField, error) {
	switch f := OrderSortField(strings.TrimSpace(raw)); f {
	case SortByOrderID, SortByEmail, SortByOrderDate, SortByTotalAmount, SortByOrderStatus:
		return f, nil
	default:
		return "", ErrSortFieldUnknown
	}
}

// PageRequest — параметры страницы; Number начинается с нуля.
type PageRequest struct {
	Number    int
	Size      int
	SortField OrderSortField
	Direction SortDirection
}

// NewPageRequest собирает и проверяет параметры страницы.
func NewPageRequest(number, size int, sortField, direction string) (PageRequest, error) {
	field, err := ParseOrderSortField(sortField)
	if err != nil {
		return PageRequest{}, err
	}
	req := PageRequest{
		Number:    number,
		Size:      size,
		SortField: field,
		Direction: ParseSortDirection(direction),
	}
	if err := req.Validate(); err != nil {
		return PageRequest{}, err
	}
	return req, nil
}

// Validate проверяет номер и размер страницы. Конец страницы
// (Number+1)*Size обязан помещаться в int.
func (p PageRequest) Validate() error {
	if p.Number < 0 || p.Size <= 0 || p.Number >= math.MaxInt/p.Size {
		return ErrPageInvalid
	}
	return nil
}

// Offset возвращает количество пропускаемых записей.
func (p PageRequest) Offset() int {
	return p.Number * p.Size
}

// Page описывает страницу результата.
type Page[T any] struct {
	Content       []T
	Number        int
	Size          int
	TotalElements int64
	TotalPages    int
	Last          bool
}

// NewPage считает производные поля страницы: TotalPages = ceil(total/size),
// Last: следующей страницы нет.
func NewPage[T any](content []T, req PageRequest, total int64) Page[T] {
	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	if content == nil {
		content = make([]T, 0)
	}
	return Page[T]{
		Content:       content,
		Number:        req.Number,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          req.Number+1 >= totalPages,
	}
}
