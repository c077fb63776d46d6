package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется и как координата чанка в сетке мира, и как мировая позиция блока.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ToChunkCoords преобразует мировые координаты блока в координаты чанка
func (v Vec3) ToChunkCoords() Vec3 {
	return Vec3{X: v.X >> 4, Y: v.Y >> 4, Z: v.Z >> 4} // Деление на 16 с округлением вниз
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec3) LocalInChunk() Vec3 {
	return Vec3{X: v.X & 0xF, Y: v.Y & 0xF, Z: v.Z & 0xF} // Модуль 16
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Less задает порядок (Y, Z, X) для стабильной сортировки координат
func (v Vec3) Less(other Vec3) bool {
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	if v.Z != other.Z {
		return v.Z < other.Z
	}
	return v.X < other.X
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// ParseVec3 разбирает строку вида "x,y,z"
func ParseVec3(s string) (Vec3, error) {
	var v Vec3
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &v.X, &v.Y, &v.Z); err != nil {
		return Vec3{}, fmt.Errorf("invalid vector %q, expected x,y,z: %w", s, err)
	}
	return v, nil
}
