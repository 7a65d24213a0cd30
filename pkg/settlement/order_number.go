package settlement

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// NewOrderNumber - ORD + yyyyMMddHHmmss + 6 haneli rastgele sayı.
// Tekillik veritabanındaki unique index ile garanti edilir.
func NewOrderNumber() string {
	return fmt.Sprintf("ORD%s%s", time.Now().Format("20060102150405"), randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(n.String())
	}
	return b.String()
}
