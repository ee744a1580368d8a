package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kusina-pos/api/internal/discount"
)

const getDiscountByCode = `SELECT code, name, type, value, min_order, max_discount, active, valid_from, valid_until
FROM discounts WHERE code = $1`

// GetDiscountByCode matches codes case-insensitively; stored codes are upper-case.
func (q *Queries) GetDiscountByCode(ctx context.Context, code string) (discount.Discount, error) {
	var (
		d                          discount.Discount
		value, minOrder, maxAmount pgtype.Numeric
	)
	err := q.db.QueryRow(ctx, getDiscountByCode, discount.NormalizeCode(code)).Scan(
		&d.Code,
		&d.Name,
		&d.Type,
		&value,
		&minOrder,
		&maxAmount,
		&d.Active,
		&d.ValidFrom,
		&d.ValidUntil,
	)
	if err != nil {
		return discount.Discount{}, notFound(err)
	}
	d.Value = numericToDecimal(value)
	d.MinOrder = numericToDecimal(minOrder)
	d.MaxDiscount = numericToNullDecimal(maxAmount)
	return d, nil
}

const upsertDiscount = `INSERT INTO discounts (code, name, type, value, min_order, max_discount, active, valid_from, valid_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name, type = EXCLUDED.type, value = EXCLUDED.value,
	min_order = EXCLUDED.min_order, max_discount = EXCLUDED.max_discount,
	active = EXCLUDED.active, valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until`

func (q *Queries) UpsertDiscount(ctx context.Context, d discount.Discount) error {
	_, err := q.db.Exec(ctx, upsertDiscount,
		discount.NormalizeCode(d.Code),
		d.Name,
		d.Type,
		decimalToNumeric(d.Value),
		decimalToNumeric(d.MinOrder),
		nullDecimalToNumeric(d.MaxDiscount),
		d.Active,
		d.ValidFrom,
		d.ValidUntil,
	)
	return err
}
