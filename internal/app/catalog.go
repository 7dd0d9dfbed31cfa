package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/money"
	"github.com/vladislavdragonenkov/pos/internal/service/billing"
)

// Catalog — YAML-файл с политиками магазинов и начальными остатками.
//
//	default_stock_policy: reject
//	shops:
//	  - id: shop-1
//	    stock_policy: backorder
//	    products:
//	      - id: tea
//	        name: Green tea
//	        price: "120.50"
//	        stock: 40
type Catalog struct {
	DefaultStockPolicy domain.StockPolicy `yaml:"default_stock_policy"`
	Shops              []CatalogShop      `yaml:"shops"`
}

// CatalogShop — настройки одного магазина.
type CatalogShop struct {
	ID          string             `yaml:"id"`
	StockPolicy domain.StockPolicy `yaml:"stock_policy"`
	Products    []CatalogProduct   `yaml:"products"`
}

// CatalogProduct — товар каталога. Цена задаётся десятичной строкой в основных единицах.
// Stock применяется только при первом появлении товара: дальше остаток ведут продажи.
type CatalogProduct struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Stock int64  `yaml:"stock"`
}

// LoadCatalog читает и валидирует каталог из файла.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog разбирает YAML каталога. Неизвестные поля считаются ошибкой.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := catalog.validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func (c *Catalog) validate() error {
	if c.DefaultStockPolicy != "" && !c.DefaultStockPolicy.Valid() {
		return fmt.Errorf("default_stock_policy %q: %w", c.DefaultStockPolicy, domain.ErrUnknownStockPolicy)
	}

	seen := make(map[string]struct{}, len(c.Shops))
	for i, shop := range c.Shops {
		if strings.TrimSpace(shop.ID) == "" {
			return fmt.Errorf("shops[%d]: %w", i, domain.ErrShopIDRequired)
		}
		if _, ok := seen[shop.ID]; ok {
			return fmt.Errorf("shops[%d]: duplicate shop %q", i, shop.ID)
		}
		seen[shop.ID] = struct{}{}

		if shop.StockPolicy != "" && !shop.StockPolicy.Valid() {
			return fmt.Errorf("shop %s stock_policy %q: %w", shop.ID, shop.StockPolicy, domain.ErrUnknownStockPolicy)
		}
		for j, product := range shop.Products {
			if strings.TrimSpace(product.ID) == "" {
				return fmt.Errorf("shop %s products[%d]: %w", shop.ID, j, domain.ErrProductIDRequired)
			}
			price, err := money.ParseMinor(product.Price)
			if err != nil {
				return fmt.Errorf("shop %s product %s price: %w", shop.ID, product.ID, err)
			}
			if price < 0 {
				return fmt.Errorf("shop %s product %s: %w", shop.ID, product.ID, domain.ErrItemPriceInvalid)
			}
		}
	}
	return nil
}

// Policies строит resolver политик. fallback используется, если в каталоге нет default_stock_policy.
func (c *Catalog) Policies(fallback domain.StockPolicy) *billing.StaticPolicies {
	def := fallback
	overrides := make(map[string]domain.StockPolicy)
	if c != nil {
		if c.DefaultStockPolicy != "" {
			def = c.DefaultStockPolicy
		}
		for _, shop := range c.Shops {
			if shop.StockPolicy != "" {
				overrides[shop.ID] = shop.StockPolicy
			}
		}
	}
	return billing.NewStaticPolicies(def, overrides)
}

// SeedResult — итог применения каталога к складскому учёту.
type SeedResult struct {
	Created int
	Updated int
}

// Seed добавляет новые товары каталога с начальным остатком, у известных
// обновляет название и цену. Остаток существующих товаров не трогается,
// поэтому перезапуск сервиса не отменяет продажи.
func (c *Catalog) Seed(stock domain.StockRepository) (SeedResult, error) {
	var result SeedResult
	if c == nil {
		return result, nil
	}

	for _, shop := range c.Shops {
		for _, product := range shop.Products {
			price, err := money.ParseMinor(product.Price)
			if err != nil {
				return result, fmt.Errorf("shop %s product %s price: %w", shop.ID, product.ID, err)
			}
			name := product.Name
			if name == "" {
				name = product.ID
			}
			created, err := stock.Seed(domain.Product{
				ID:         product.ID,
				ShopID:     shop.ID,
				Name:       name,
				PriceMinor: price,
				Stock:      product.Stock,
			})
			if err != nil {
				return result, fmt.Errorf("seed product %s/%s: %w", shop.ID, product.ID, err)
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}
	return result, nil
}
