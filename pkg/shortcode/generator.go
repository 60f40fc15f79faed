package shortcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet — base58-подобный алфавит без неоднозначных символов (0/O, 1/l/I).
const Alphabet = "23456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	DefaultLength   = 7
	MinCustomLength = 4
	MaxCustomLength = 32
)

var (
	ErrBadLength  = errors.New("shortcode: length out of bounds")
	ErrBadCharset = errors.New("shortcode: character outside alphabet")
	ErrReserved   = errors.New("shortcode: code is reserved")
)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

type Generator struct {
	length   int
	reserved map[string]struct{}
}

// New создаёт генератор с заданной длиной автокодов. Зарезервированные
// слова отклоняются при валидации пользовательских кодов без учёта регистра.
func New(length int, reserved ...string) *Generator {
	if length <= 0 {
		length = DefaultLength
	}

	r := make(map[string]struct{}, len(reserved))
	for _, w := range reserved {
		r[strings.ToLower(w)] = struct{}{}
	}

	return &Generator{length: length, reserved: r}
}

func (g *Generator) Length() int { return g.length }

// Generate — один случайный код; проверку занятости делает хранилище,
// генератор никогда не ходит в сеть и не зацикливается.
func (g *Generator) Generate() (string, error) {
	return g.GenerateWithLength(g.length)
}

func (g *Generator) GenerateWithLength(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)

	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("shortcode: draw random index: %w", err)
		}
		sb.WriteByte(Alphabet[idx.Int64()])
	}

	return sb.String(), nil
}

// ValidateCustom проверяет пользовательский код: границы длины, алфавит,
// список зарезервированных слов.
func (g *Generator) ValidateCustom(code string) error {
	if len(code) < MinCustomLength || len(code) > MaxCustomLength {
		return ErrBadLength
	}

	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return ErrBadCharset
		}
	}

	if _, ok := g.reserved[strings.ToLower(code)]; ok {
		return ErrReserved
	}

	return nil
}

// Valid — быстрая проверка формы кода на пути редиректа, без аллокаций
// по возможности. Допускает и исходную, и увеличенную на 1 длину
// (fallback-эскалация генератора), и пользовательские коды.
func (g *Generator) Valid(code string) bool {
	if len(code) < MinCustomLength || len(code) > MaxCustomLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}

	return true
}
