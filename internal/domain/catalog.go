package domain

import "strings"

// Product — товар каталога. Каталог принадлежит внешнему CRUD-слою,
// ядро заказов только читает товар и уменьшает остаток.
type Product struct {
	ID                string
	Name              string
	CategoryID        string
	SellerID          string
	PriceMinor        int64
	DiscountMinor     int64
	SpecialPriceMinor int64
	Quantity          int32
}

// Address — адрес доставки пользователя.
type Address struct {
	ID           string
	UserID       string
	Street       string
	BuildingName string
	City         string
	State        string
	Country      string
	Pincode      string
}

// Validate проверяет обязательные поля адреса.
func (a *Address) Validate() []error {
	var errs []error
	for _, v := range []string{a.Street, a.City, a.State, a.Country, a.Pincode} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, ErrAddressFieldRequired)
			break
		}
	}
	return errs
}
