package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ProductIDList - Postgres'te bigint[] kolon, diğer sürücülerde dizi
// literal'i ("{1,2,3}") tutan text kolon.
type ProductIDList []int64

func (ProductIDList) GormDataType() string {
	return "int64array"
}

func (ProductIDList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "bigint[]"
	}
	return "text"
}

func (l ProductIDList) Value() (driver.Value, error) {
	return pq.Int64Array(l).Value()
}

func (l *ProductIDList) Scan(src interface{}) error {
	return (*pq.Int64Array)(l).Scan(src)
}

func (l ProductIDList) Contains(id uint) bool {
	for _, v := range l {
		if v == int64(id) {
			return true
		}
	}
	return false
}
