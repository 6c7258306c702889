package utils

import (
	"github.com/bytedance/sonic"

	"github.com/saiset-co/sai-render/types"
)

// storeAPI encodes everything persisted to a KVStore. Sorted map keys keep
// equal values byte-identical across writes.
var storeAPI = sonic.Config{
	SortMapKeys:      true,
	NoNullSliceOrMap: true,
	CopyString:       true,
}.Froze()

func Marshal(data interface{}) ([]byte, error) {
	return storeAPI.Marshal(data)
}

func Unmarshal[T any](data []byte, target *T) error {
	return storeAPI.Unmarshal(data, target)
}

// UnmarshalConfig decodes a free-form config section (usually the
// map[string]interface{} produced by the YAML loader) into target.
func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}
	if typed, ok := config.(T); ok {
		*target = typed
		return nil
	}

	raw, err := sonic.ConfigStd.Marshal(config)
	if err != nil {
		return types.WrapError(err, "failed to encode config section")
	}

	return types.WrapError(storeAPI.Unmarshal(raw, target), "failed to decode config section")
}
