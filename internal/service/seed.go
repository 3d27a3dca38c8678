package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pharmacy-storefront/internal/model"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
)

// DemoLogin и DemoPassword: учётные данные покупателя из демонстрационного набора.
const (
	DemoLogin    = "demo"
	DemoPassword = "demo-password"
)

type demoProduct struct {
	name, slug, price string
	variants          []demoVariant
}

type demoVariant struct {
	label string
	stock int
}

var demoCatalog = []demoProduct{
	{name: "Paracetamol", slug: "paracetamol", price: "250.00", variants: []demoVariant{
		{label: "500 mg x 10", stock: 120},
		{label: "500 mg x 20", stock: 60},
	}},
	{name: "Ibuprofen", slug: "ibuprofen", price: "420.50", variants: []demoVariant{
		{label: "200 mg x 20", stock: 80},
	}},
	{name: "Vitamin D3", slug: "vitamin-d3", price: "1290.00", variants: []demoVariant{
		{label: "2000 IU x 60", stock: 35},
	}},
	{name: "Blood pressure monitor", slug: "bp-monitor", price: "5490.00", variants: []demoVariant{
		{label: "upper arm", stock: 5},
	}},
}

// SeedDemoCatalog заполняет хранилище демонстрационным каталогом, акцией и покупателем.
// Уже существующие покупатель и товары (по slug) не трогаются, повторный вызов ничего не меняет.
func (s *Service) SeedDemoCatalog(ctx context.Context) error {
	return s.repo.InTx(ctx, func(q repository.Queries) error {
		now := s.now()

		_, err := q.GetCustomerByLogin(ctx, DemoLogin)
		if errors.Is(err, repository.ErrNotFound) {
			_, err = q.CreateCustomer(ctx, &model.Customer{
				Login:        DemoLogin,
				PasswordHash: hashPassword(DemoLogin, DemoPassword),
				PhoneNumber:  "+10000000000",
				CreatedAt:    now,
			})
		}
		if err != nil {
			return err
		}

		var (
			promoted []int64
			created  int
		)
		for _, dp := range demoCatalog {
			productID, isNew, err := seedProduct(ctx, q, dp)
			if err != nil {
				return err
			}
			if isNew {
				created++
			}
			if dp.slug == "paracetamol" || dp.slug == "vitamin-d3" {
				promoted = append(promoted, productID)
			}
		}
		if created == 0 {
			return nil
		}

		_, err = q.CreatePromotion(ctx, &model.Promotion{
			Name:            "Season opening",
			DiscountPercent: 15,
			StartDate:       now.AddDate(0, 0, -1),
			EndDate:         now.AddDate(0, 1, 0),
			Active:          true,
			ProductIDs:      promoted,
		})
		return err
	})
}

func seedProduct(ctx context.Context, q repository.Queries, dp demoProduct) (int64, bool, error) {
	existing, err := q.GetProductBySlug(ctx, dp.slug)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, false, err
	}

	price := decimal.RequireFromString(dp.price)
	productID, err := q.CreateProduct(ctx, &model.Product{Name: dp.name, Slug: dp.slug, Price: price, Active: true})
	if err != nil {
		return 0, false, err
	}
	for _, dv := range dp.variants {
		if _, err := q.CreateVariant(ctx, &model.ProductVariant{
			ProductID: productID,
			Label:     dv.label,
			Price:     price,
			Stock:     dv.stock,
		}); err != nil {
			return 0, false, err
		}
	}
	return productID, true, nil
}
