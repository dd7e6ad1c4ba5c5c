package domain

// CartItem — позиция корзины покупателя.
type CartItem struct {
	ID            string
	ProductID     string
	Quantity      int32
	PriceMinor    int64
	DiscountMinor int64
}

// LineTotal возвращает стоимость позиции: price × qty − discount.
func (i CartItem) LineTotal() int64 {
	return i.PriceMinor*int64(i.Quantity) - i.DiscountMinor
}

// Cart — корзина пользователя; у одного email не больше одной активной корзины.
type Cart struct {
	ID         string
	Email      string
	Items      []CartItem
	TotalMinor int64
}

// Total пересчитывает сумму корзины по текущим позициям.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// Recalculate синхронизирует TotalMinor с позициями.
func (c *Cart) Recalculate() {
	c.TotalMinor = c.Total()
}

// RemoveProduct удаляет позицию с товаром productID и возвращает true, если она была.
func (c *Cart) RemoveProduct(productID string) bool {
	for idx, item := range c.Items {
		if item.ProductID != productID {
			continue
		}
		c.Items = append(c.Items[:idx:idx], c.Items[idx+1:]...)
		c.Recalculate()
		return true
	}
	return false
}

// Validate проверяет позиции корзины.
func (c *Cart) Validate() []error {
	var errs []error
	if c.Email == "" {
		errs = append(errs, ErrEmailRequired)
	}
	for _, item := range c.Items {
		if item.Quantity < 1 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}
	return errs
}

// Clone возвращает копию корзины с независимым срезом позиций.
func (c Cart) Clone() Cart {
	c.Items = append([]CartItem(nil), c.Items...)
	return c
}
