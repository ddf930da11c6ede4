package shardmap

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"reflect"
	"strings"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// HashAlgorithm selects the built-in key hasher.
//
// The byte-oriented algorithms (XXH3, XXHash, Murmur3) apply to keys whose
// underlying type is a string or an integer. Every other comparable key
// type is hashed with hash/maphash regardless of the selected algorithm.
type HashAlgorithm uint8

const (
	// HashDefault uses XXH3 for string and integer keys and maphash otherwise.
	HashDefault HashAlgorithm = iota
	// HashXXH3 is github.com/zeebo/xxh3.
	HashXXH3
	// HashXXHash is github.com/cespare/xxhash/v2 (XXH64).
	HashXXHash
	// HashMurmur3 is github.com/spaolacci/murmur3 (128-bit, low half).
	HashMurmur3
	// HashMapHash is hash/maphash.Comparable for every key type.
	HashMapHash
)

var hashAlgorithmNames = [...]string{
	HashDefault: "default",
	HashXXH3:    "xxh3",
	HashXXHash:  "xxhash",
	HashMurmur3: "murmur3",
	HashMapHash: "maphash",
}

func (a HashAlgorithm) String() string {
	if int(a) < len(hashAlgorithmNames) {
		return hashAlgorithmNames[a]
	}
	return fmt.Sprintf("HashAlgorithm(%d)", uint8(a))
}

// ParseHashAlgorithm maps a name (case-insensitive) to a HashAlgorithm.
// The empty string selects HashDefault.
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	if name == "" {
		return HashDefault, nil
	}
	for i, n := range hashAlgorithmNames {
		if strings.EqualFold(name, n) {
			return HashAlgorithm(i), nil
		}
	}
	return HashDefault, fmt.Errorf("shardmap: unknown hash algorithm %q", name)
}

// IHashFunc lets a key type provide its own hash, as an alternative to
// WithKeyHasher.
//
// It is detected on *K during construction, takes precedence over the
// built-in hashers and is overridden by an explicit WithKeyHasher.
//
// Usage:
//
//	type TenantKey struct {
//		Tenant string
//		ID     uint64
//	}
//
//	func (k *TenantKey) HashFunc(seed uint64) uint64 {
//		return xxh3.HashStringSeed(k.Tenant, seed) ^ k.ID
//	}
type IHashFunc interface {
	HashFunc(seed uint64) uint64
}

type keyKind uint8

const (
	kindOther keyKind = iota
	kindString
	kindInt
)

func keyKindOf[K comparable]() (keyKind, uintptr) {
	t := reflect.TypeFor[K]()
	switch t.Kind() {
	case reflect.String:
		return kindString, t.Size()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr:
		return kindInt, t.Size()
	default:
		return kindOther, t.Size()
	}
}

// newKeyHasher resolves the hash function for K.
//
// Priority (highest to lowest):
//   - custom, from WithKeyHasher
//   - IHashFunc implemented by *K
//   - the built-in hasher selected by algo
func newKeyHasher[K comparable](
	custom func(K, uint64) uint64,
	algo HashAlgorithm,
	seed uint64,
) func(K) uint64 {
	if custom != nil {
		return func(key K) uint64 {
			return custom(key, seed)
		}
	}
	var k *K
	if _, ok := any(k).(IHashFunc); ok {
		return func(key K) uint64 {
			return any(&key).(IHashFunc).HashFunc(seed)
		}
	}

	kind, size := keyKindOf[K]()
	if algo == HashMapHash {
		kind = kindOther
	}
	switch kind {
	case kindString:
		hs := stringHasher(algo)
		return func(key K) uint64 {
			return hs(*(*string)(unsafe.Pointer(&key)), seed)
		}
	case kindInt:
		hb := bytesHasher(algo)
		return func(key K) uint64 {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], loadUint(unsafe.Pointer(&key), size))
			return hb(b[:], seed)
		}
	default:
		ms := maphash.MakeSeed()
		return func(key K) uint64 {
			return maphash.Comparable(ms, key)
		}
	}
}

func loadUint(p unsafe.Pointer, size uintptr) uint64 {
	switch size {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}

func stringHasher(algo HashAlgorithm) func(string, uint64) uint64 {
	switch algo {
	case HashXXHash:
		return func(s string, seed uint64) uint64 {
			var d xxhash.Digest
			d.ResetWithSeed(seed)
			_, _ = d.WriteString(s)
			return d.Sum64()
		}
	case HashMurmur3:
		return func(s string, seed uint64) uint64 {
			return hashMurmur3(unsafe.Slice(unsafe.StringData(s), len(s)), seed)
		}
	default:
		return xxh3.HashStringSeed
	}
}

func bytesHasher(algo HashAlgorithm) func([]byte, uint64) uint64 {
	switch algo {
	case HashXXHash:
		return func(b []byte, seed uint64) uint64 {
			var d xxhash.Digest
			d.ResetWithSeed(seed)
			_, _ = d.Write(b)
			return d.Sum64()
		}
	case HashMurmur3:
		return hashMurmur3
	default:
		return xxh3.HashSeed
	}
}

func hashMurmur3(b []byte, seed uint64) uint64 {
	return murmur3.Sum64WithSeed(b, uint32(seed)^uint32(seed>>32))
}
