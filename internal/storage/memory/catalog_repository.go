package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	acc accessor
}

// FindByEmail возвращает копию корзины с пересчитанной суммой.
func (r *cartRepository) FindByEmail(_ context.Context, email string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.acc.read(func(st *state) error {
		c, ok := st.carts[email]
		if !ok {
			return domain.NewNotFound("Cart", "email", email)
		}
		cart = c.Clone()
		return nil
	})
	cart.Recalculate()
	return cart, err
}

func (r *cartRepository) RemoveItem(_ context.Context, cartID, productID string) error {
	return r.acc.write(func(st *state) error {
		for email, cart := range st.carts {
			if cart.ID != cartID {
				continue
			}
			cart = cart.Clone()
			if !cart.RemoveProduct(productID) {
				return domain.NewNotFound("Product", "productId", productID)
			}
			st.carts[email] = cart
			return nil
		}
		return domain.NewNotFound("Cart", "cartId", cartID)
	})
}

type addressRepository struct {
	acc accessor
}

func (r *addressRepository) Get(_ context.Context, id string) (domain.Address, error) {
	var addr domain.Address
	err := r.acc.read(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok {
			return domain.NewNotFound("Address", "addressId", id)
		}
		addr = a
		return nil
	})
	return addr, err
}

type productRepository struct {
	acc accessor
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.acc.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NewNotFound("Product", "productId", id)
		}
		product = p
		return nil
	})
	return product, err
}

func (r *productRepository) UpdateQuantity(_ context.Context, id string, quantity int32) error {
	return r.acc.write(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NewNotFound("Product", "productId", id)
		}
		p.Quantity = quantity
		st.products[id] = p
		return nil
	})
}

var (
	_ domain.CartRepository    = (*cartRepository)(nil)
	_ domain.AddressRepository = (*addressRepository)(nil)
	_ domain.ProductRepository = (*productRepository)(nil)
)
