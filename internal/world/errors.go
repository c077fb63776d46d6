package world

import "errors"

var (
	// ErrOutOfRange возвращается для локальных координат или индексов вне [0,16)
	ErrOutOfRange = errors.New("coordinate out of range")

	// ErrNotBottomLayer возвращается при попытке изменить слой бедрока
	// у чанка, не лежащего в нижнем слое сетки мира
	ErrNotBottomLayer = errors.New("chunk is not in the bottom grid layer")

	// ErrInvalidLength возвращается при создании чанка из последовательности длины != 4096
	ErrInvalidLength = errors.New("invalid block sequence length")
)
