package rewards

import (
	"crypto/rand"
	"io"
)

const CodePrefix = "MTL-"

// 32 символа без визуально похожих: нет 0/O и 1/I
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const codeLength = 8

// Генератор кодов вознаграждений.
// Уникальность кодов не гарантирует - обеспечивается уникальным
// индексом при вставке и повторной генерацией при коллизии.
type CodeGenerator struct {
	rand io.Reader
}

func NewCodeGenerator(r io.Reader) *CodeGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &CodeGenerator{r}
}

// Код вида MTL-XXXXXXXX
func (g *CodeGenerator) Generate() (string, error) {
	buf := make([]byte, codeLength)
	_, err := io.ReadFull(g.rand, buf)
	if err != nil {
		return "", err
	}
	code := make([]byte, 0, len(CodePrefix)+codeLength)
	code = append(code, CodePrefix...)
	for _, b := range buf {
		// len(codeAlphabet) == 32 делит 256, распределение равномерное
		code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(code), nil
}
