package block

import (
	"fmt"
	"sort"
	"sync"
)

// BlockID представляет идентификатор типа блока.
// 0 всегда означает воздух (пустое пространство).
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	WaterBlockID                // 3
	SandBlockID                 // 4
	DirtBlockID                 // 5
	GravelBlockID               // 6
	BedrockBlockID              // 7 - неразрушимый нижний слой мира

	// Декоративные блоки (начиная с 100)
	FlowerBlockID BlockID = 100 // Цветок
	TreeBlockID   BlockID = 101 // Дерево
	CactusBlockID BlockID = 102 // Кактус
)

// registryMu защищает registry
var registryMu sync.RWMutex

var registry = map[BlockID]string{
	AirBlockID:     "air",
	StoneBlockID:   "stone",
	GrassBlockID:   "grass",
	WaterBlockID:   "water",
	SandBlockID:    "sand",
	DirtBlockID:    "dirt",
	GravelBlockID:  "gravel",
	BedrockBlockID: "bedrock",
	FlowerBlockID:  "flower",
	TreeBlockID:    "tree",
	CactusBlockID:  "cactus",
}

// Register добавляет имя блока в регистр
func Register(id BlockID, name string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[id] = name
}

// Name возвращает имя блока или "block#<id>" для незарегистрированных ID
func Name(id BlockID) string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name, ok := registry[id]; ok {
		return name
	}
	return fmt.Sprintf("block#%d", id)
}

// Lookup ищет ID блока по имени
func Lookup(name string) (BlockID, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for id, n := range registry {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// IsValidBlockID проверяет, является ли ID зарегистрированным идентификатором блока
func IsValidBlockID(id BlockID) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	_, exists := registry[id]
	return exists
}

// RegisteredIDs возвращает все зарегистрированные ID по возрастанию
func RegisteredIDs() []BlockID {
	registryMu.RLock()
	ids := make([]BlockID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	registryMu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (id BlockID) String() string {
	return Name(id)
}
