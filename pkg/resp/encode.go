package resp

import (
	"math"
	"strconv"
)

// appendPrefix appends a length/count header of the form "<c><n>\r\n",
// fast-pathing the common single-digit case. Adapted from the teacher's
// appendPrefix helper in pkg/resp/resp.go.
func appendPrefix(b []byte, c byte, n int64) []byte {
	if n >= 0 && n <= 9 {
		return append(b, c, byte('0'+n), '\r', '\n')
	}
	b = append(b, c)
	b = strconv.AppendInt(b, n, 10)
	return append(b, '\r', '\n')
}

// AppendSimpleString appends a RESP SimpleString: "+<s>\r\n".
func AppendSimpleString(b []byte, s string) []byte {
	b = append(b, '+')
	b = append(b, s...)
	return append(b, '\r', '\n')
}

// AppendSimpleError appends a RESP SimpleError: "-<s>\r\n".
func AppendSimpleError(b []byte, s string) []byte {
	b = append(b, '-')
	b = append(b, s...)
	return append(b, '\r', '\n')
}

// AppendOK appends the common "+OK\r\n" reply.
func AppendOK(b []byte) []byte {
	return append(b, '+', 'O', 'K', '\r', '\n')
}

// AppendInteger appends a RESP Integer with an explicit sign byte: "+" for
// n >= 0, "-" for n < 0, followed by the decimal magnitude. This is stricter
// than canonical RESP (which omits the sign on non-negative integers) but
// matches the wire form this package round-trips.
func AppendInteger(b []byte, n int64) []byte {
	b = append(b, ':')
	if n >= 0 {
		b = append(b, '+')
		b = strconv.AppendInt(b, n, 10)
	} else {
		// strconv.AppendInt already renders a single leading '-' for
		// negative n; do not add a second sign byte.
		b = strconv.AppendInt(b, n, 10)
	}
	return append(b, '\r', '\n')
}

// AppendBulk appends a RESP BulkString from raw bytes: "$<len>\r\n<b>\r\n".
func AppendBulk(b []byte, bulk []byte) []byte {
	b = appendPrefix(b, '$', int64(len(bulk)))
	b = append(b, bulk...)
	return append(b, '\r', '\n')
}

// AppendBulkString appends a RESP BulkString from a string.
func AppendBulkString(b []byte, s string) []byte {
	b = appendPrefix(b, '$', int64(len(s)))
	b = append(b, s...)
	return append(b, '\r', '\n')
}

// AppendNullBulkString appends "$-1\r\n".
func AppendNullBulkString(b []byte) []byte {
	return append(b, '$', '-', '1', '\r', '\n')
}

// AppendArrayHeader appends an Array header; callers then append n child
// frames themselves.
func AppendArrayHeader(b []byte, n int) []byte {
	return appendPrefix(b, '*', int64(n))
}

// AppendNullArray appends "*-1\r\n".
func AppendNullArray(b []byte) []byte {
	return append(b, '*', '-', '1', '\r', '\n')
}

// AppendNull appends the RESP3 null value "_\r\n".
func AppendNull(b []byte) []byte {
	return append(b, '_', '\r', '\n')
}

// AppendBoolean appends a RESP3 boolean: "#t\r\n" or "#f\r\n".
func AppendBoolean(b []byte, v bool) []byte {
	if v {
		return append(b, '#', 't', '\r', '\n')
	}
	return append(b, '#', 'f', '\r', '\n')
}

// AppendDouble appends a RESP3 double using the shortest round-tripping
// textual form. Non-finite values render as "inf", "-inf" and "nan", which
// Decode parses back via strconv.ParseFloat.
func AppendDouble(b []byte, f float64) []byte {
	b = append(b, ',')
	b = append(b, formatDouble(f)...)
	return append(b, '\r', '\n')
}

func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// AppendMapHeader appends a Map header counting entries (not elements);
// callers then append each key (as a SimpleString) followed by its value.
func AppendMapHeader(b []byte, entries int) []byte {
	return appendPrefix(b, '%', int64(entries))
}

// AppendSetHeader appends a Set header; callers then append each element.
func AppendSetHeader(b []byte, n int) []byte {
	return appendPrefix(b, '~', int64(n))
}

// Encode renders a Frame to its wire representation. Encode never fails:
// every constructible Frame has a defined byte encoding.
func Encode(f Frame) []byte {
	return AppendFrame(nil, f)
}

// AppendFrame encodes f and appends it to b, recursing into containers.
func AppendFrame(b []byte, f Frame) []byte {
	switch f.Kind {
	case SimpleString:
		return AppendSimpleString(b, f.Str)
	case SimpleError:
		return AppendSimpleError(b, f.Str)
	case Integer:
		return AppendInteger(b, f.Int)
	case BulkString:
		return AppendBulk(b, f.Bulk)
	case NullBulkString:
		return AppendNullBulkString(b)
	case Array:
		b = AppendArrayHeader(b, len(f.Array))
		for _, item := range f.Array {
			b = AppendFrame(b, item)
		}
		return b
	case NullArray:
		return AppendNullArray(b)
	case Null:
		return AppendNull(b)
	case Boolean:
		return AppendBoolean(b, f.Bool)
	case Double:
		return AppendDouble(b, f.Double)
	case Map:
		b = AppendMapHeader(b, len(f.Map))
		for _, entry := range f.Map {
			b = AppendSimpleString(b, entry.Key)
			b = AppendFrame(b, entry.Value)
		}
		return b
	case Set:
		b = AppendSetHeader(b, len(f.Array))
		for _, item := range f.Array {
			b = AppendFrame(b, item)
		}
		return b
	default:
		// Kind values outside the declared constants render as a null so
		// Encode remains total.
		return AppendNull(b)
	}
}
