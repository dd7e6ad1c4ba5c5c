package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	q queryer
}

// FindByEmail блокирует строку корзины до конца транзакции и читает её позиции.
func (r *cartRepository) FindByEmail(ctx context.Context, email string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, email, total_price_minor
		FROM carts
		WHERE email = $1
		FOR UPDATE
	`, email).Scan(&cart.ID, &cart.Email, &cart.TotalMinor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.NewNotFound("Cart", "email", email)
		}
		return domain.Cart{}, lockError("select cart", err)
	}

	cart.Items, err = queryAll(ctx, r.q, "cart items", func(row rowScanner) (domain.CartItem, error) {
		var item domain.CartItem
		err := row.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.PriceMinor, &item.DiscountMinor)
		return item, err
	}, `
		SELECT id, product_id, quantity, price_minor, discount_minor
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY product_id ASC
	`, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}

	cart.Recalculate()
	return cart, nil
}

// RemoveItem удаляет позицию и пересчитывает сумму корзины в той же транзакции.
func (r *cartRepository) RemoveItem(ctx context.Context, cartID, productID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = $1
		  AND product_id = $2
	`, cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	affected, err := affectedRows(res)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NewNotFound("Product", "productId", productID)
	}

	if _, err := r.q.ExecContext(ctx, `
		UPDATE carts
		SET total_price_minor = (
			SELECT COALESCE(SUM(price_minor * quantity - discount_minor), 0)
			FROM cart_items
			WHERE cart_id = $1
		)
		WHERE id = $1
	`, cartID); err != nil {
		return fmt.Errorf("recalculate cart total: %w", err)
	}

	return nil
}

type addressRepository struct {
	q queryer
}

func (r *addressRepository) Get(ctx context.Context, id string) (domain.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var a domain.Address
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, street, building_name, city, state, country, pincode
		FROM addresses
		WHERE id = $1
	`, id).Scan(&a.ID, &a.UserID, &a.Street, &a.BuildingName, &a.City, &a.State, &a.Country, &a.Pincode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Address{}, domain.NewNotFound("Address", "addressId", id)
		}
		return domain.Address{}, fmt.Errorf("select address: %w", err)
	}

	return a, nil
}

type productRepository struct {
	q queryer
}

// Get блокирует строку товара до конца транзакции. NO KEY UPDATE не
// конфликтует с KEY SHARE от вставок в order_items.
func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, category_id, seller_id, price_minor, discount_minor, special_price_minor, quantity
		FROM products
		WHERE id = $1
		FOR NO KEY UPDATE
	`, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.SellerID, &p.PriceMinor, &p.DiscountMinor, &p.SpecialPriceMinor, &p.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NewNotFound("Product", "productId", id)
		}
		return domain.Product{}, lockError("select product", err)
	}

	return p, nil
}

func (r *productRepository) UpdateQuantity(ctx context.Context, id string, quantity int32) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET quantity = $2
		WHERE id = $1
	`, id, quantity)
	if err != nil {
		return fmt.Errorf("update product quantity: %w", err)
	}
	affected, err := affectedRows(res)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NewNotFound("Product", "productId", id)
	}

	return nil
}

// lockError помечает deadlock и serialization failure как сбой транзакции.
func lockError(op string, err error) error {
	if isSerializationFailure(err) {
		return domain.NewTransactionError(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var (
	_ domain.CartRepository    = (*cartRepository)(nil)
	_ domain.AddressRepository = (*addressRepository)(nil)
	_ domain.ProductRepository = (*productRepository)(nil)
)
