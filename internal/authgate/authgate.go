// Package authgate реализует выдачу и проверку одноразовых кодов авторизации
// ручных скидок.
package authgate

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrAuthorizationRequired возвращается, если для чека не выдавался код авторизации.
var (
	ErrAuthorizationRequired = errors.New("authorization required")
	// ErrAuthorizationFailed возвращается при несовпадении кода авторизации.
	ErrAuthorizationFailed = errors.New("authorization failed")
)

// Gate хранит выданные коды авторизации в пределах кассовой сессии.
// Код одноразовый: успешная проверка его потребляет, по TTL он исчезает сам.
type Gate struct {
	codes *gocache.Cache
}

// NewGate создаёт шлюз авторизации с указанным временем жизни кодов.
func NewGate(ttl time.Duration) *Gate {
	return &Gate{
		codes: gocache.New(ttl, 2*ttl),
	}
}

// IssueChallenge выдаёт новый четырёхзначный код для указанного чека.
// Повторная выдача заменяет предыдущий код.
func (g *Gate) IssueChallenge(saleID int64) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}

	code := fmt.Sprintf("%04d", n.Int64())
	g.codes.SetDefault(key(saleID), code)

	return code, nil
}

// Verify сравнивает предъявленный код с выданным для чека. Совпадение
// потребляет код; несовпадение кода не сжигает (блокировки перебора нет).
func (g *Gate) Verify(saleID int64, submitted string) error {
	v, ok := g.codes.Get(key(saleID))
	if !ok {
		return ErrAuthorizationRequired
	}

	if v.(string) != submitted {
		return ErrAuthorizationFailed
	}

	g.codes.Delete(key(saleID))
	return nil
}

// Invalidate удаляет код чека, например при финализации.
func (g *Gate) Invalidate(saleID int64) {
	g.codes.Delete(key(saleID))
}

func key(saleID int64) string {
	return strconv.FormatInt(saleID, 10)
}
