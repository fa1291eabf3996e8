package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Domain fields

func Component(name string) Field {
	return String("component", name)
}

// Member identifies a cluster member by its id
func Member(id string) Field {
	return String("member", id)
}

func File(name string) Field {
	return String("file", name)
}

func Key(key string) Field {
	return String("key", key)
}

func OperationID(id string) Field {
	return String("op_id", id)
}

func TxID(id string) Field {
	return String("tx_id", id)
}

func ViewID(id uint64) Field {
	return Uint64("view_id", id)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Bytes(n int) Field {
	return Int("bytes", n)
}
