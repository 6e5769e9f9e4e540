package migrations

import (
	"gorm.io/gorm"

	"github.com/shashiranjanraj/catalogsync/internal/catalog"
	"github.com/shashiranjanraj/catalogsync/pkg/migration"
)

func init() {
	migration.Register("20260301000000_create_categories_table", &createCategories{})
	migration.Register("20260301000001_create_products_table", &createProducts{})
	migration.Register("20260301000002_create_product_images_table", &createProductImages{})
}

// -------- categories --------

type createCategories struct{}

func (createCategories) Up(db *gorm.DB) error { return db.AutoMigrate(&catalog.Category{}) }

func (createCategories) Down(db *gorm.DB) error { return db.Migrator().DropTable("categories") }

// -------- products --------

type createProducts struct{}

func (createProducts) Up(db *gorm.DB) error { return db.AutoMigrate(&catalog.Product{}) }

func (createProducts) Down(db *gorm.DB) error { return db.Migrator().DropTable("products") }

// -------- product_images --------

type createProductImages struct{}

func (createProductImages) Up(db *gorm.DB) error { return db.AutoMigrate(&catalog.ProductImage{}) }

func (createProductImages) Down(db *gorm.DB) error {
	return db.Migrator().DropTable("product_images")
}
