package util

import (
	"github.com/vmihailenco/msgpack"
)

// ToByteSlice encodes obj with msgpack. When size > 0 the result is padded
// to size bytes and an encoding that does not fit is an error.
func ToByteSlice[T any](obj T, size int) ([]byte, error) {
	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, err
	}

	if size <= 0 {
		return data, nil
	}
	if len(data) > size {
		return nil, NewError(ErrShortBlock, "encoded size %d exceeds %d", len(data), size)
	}

	res := make([]byte, size)
	copy(res, data)
	return res, nil
}

func ToStruct[T any](data []byte) (T, error) {
	var res T

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, err
	}

	return res, nil
}
