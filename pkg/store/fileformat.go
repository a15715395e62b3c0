package store

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const magicMarkerFormat = "otpk%08x"
const magicMarkerLength = 4 + 8

func makeFileMarker(version uint32) []byte {
	return []byte(fmt.Sprintf(magicMarkerFormat, version))
}

const dbVersion = 1

var magicId = makeFileMarker(dbVersion)

const fileIvSize = aes.BlockSize
const aesKeySize = 256 / 8
const macSize = sha256.Size

// encrypted bodies are padded to a multiple of this to hide the account count
const minimumIncrement = aes.BlockSize * 100

var ErrDatabaseEncrypted = errors.New("database encrypted")
var ErrInvalidHMAC = errors.New("invalid HMAC")
var ErrCorrupt = errors.New("corrupt database")
var ErrUnsupportedVersion = errors.New("unsupported database version")

func getDbVersion(b []byte) (uint32, error) {
	if len(b) < magicMarkerLength {
		return 0, ErrCorrupt
	}
	var version uint32
	_, err := fmt.Sscanf(string(b[:magicMarkerLength]), magicMarkerFormat, &version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func isValidMagicId(b []byte) bool {
	var ver, err = getDbVersion(b)
	if err != nil {
		return false
	}
	return ver != 0
}

// IsEncrypted reports whether the file at path is an encrypted database.
// Missing, empty and unreadable files are reported as not encrypted.
func IsEncrypted(path string) bool {
	fp, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fp.Close()

	var b = make([]byte, len(magicId))
	if _, err = io.ReadFull(fp, b); err != nil {
		return false
	}
	return !isValidMagicId(b)
}

// Read decodes a database. A nil passphrase only opens plain databases.
func Read(reader io.Reader, passphrase []byte) (*Database, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read database")
	}
	if len(content) < magicMarkerLength {
		return nil, errors.Wrapf(ErrCorrupt, "only %d bytes", len(content))
	}

	if !isValidMagicId(content) {
		if passphrase == nil {
			return nil, ErrDatabaseEncrypted
		}
		if len(content) < fileIvSize+aes.BlockSize+macSize ||
			(len(content)-fileIvSize-macSize)%aes.BlockSize != 0 {
			return nil, errors.Wrap(ErrCorrupt, "bad ciphertext length")
		}
		if !isHMACValid(passphrase, content) {
			return nil, ErrInvalidHMAC
		}
		candidate, err := decrypt(passphrase, content[:len(content)-macSize])
		if err != nil {
			return nil, err
		}
		if !isValidMagicId(candidate) {
			return nil, errors.Wrap(ErrCorrupt, "valid HMAC but invalid contents")
		}
		content = candidate
	}

	version, err := getDbVersion(content)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if version > dbVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
	}

	// strip the marker and anything after the terminator
	content = content[len(magicId):]
	if i := bytes.IndexByte(content, 0); i >= 0 {
		content = content[:i]
	}

	var db Database
	if err = json.Unmarshal(content, &db); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	if db.Accounts == nil {
		db.Accounts = make(map[string]string)
	}
	return &db, nil
}

// Write encodes db, encrypting it when passphrase is non-nil.
func Write(writer io.Writer, db *Database, passphrase []byte) error {
	if db == nil {
		return errors.New("invalid database")
	}

	body, err := json.Marshal(db)
	if err != nil {
		return errors.Wrap(err, "cannot encode database")
	}

	var data = make([]byte, 0, len(magicId)+len(body)+1)
	data = append(data, magicId...)
	data = append(data, body...)
	data = append(data, 0)
	if passphrase != nil {
		// NB - IV is used for KDF as well so it's a full AES Block
		var iv = make([]byte, fileIvSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return errors.Wrap(err, "cannot generate iv")
		}
		data, err = encrypt(passphrase, iv, data)
		if err != nil {
			return err
		}
	}
	_, err = writer.Write(data)
	return err
}

func Load(path string, passphrase []byte) (*Database, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return Read(fp, passphrase)
}

// Save writes db to path, creating it with 0600 permissions.
func Save(path string, db *Database, passphrase []byte) error {
	fp, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err = Write(fp, db, passphrase); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

// derive the file key with HKDF, salted by the IV
func kdf(passphrase []byte, iv []byte) ([]byte, error) {
	var key = make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, passphrase, iv, magicId), key); err != nil {
		return nil, errors.Wrap(err, "key derivation failed")
	}
	return key, nil
}

func encrypt(passphrase []byte, iv []byte, plaintext []byte) ([]byte, error) {
	key, err := kdf(passphrase, iv)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	// align to minimum increment, which is also a multiple of the block size
	if len(plaintext)%minimumIncrement != 0 {
		var padding = make([]byte, minimumIncrement-len(plaintext)%minimumIncrement)
		if _, err := io.ReadFull(rand.Reader, padding); err != nil {
			return nil, errors.Wrap(err, "cannot generate padding")
		}
		plaintext = append(plaintext, padding...)
	}

	var encrypted = make([]byte, fileIvSize+len(plaintext), fileIvSize+len(plaintext)+macSize)
	copy(encrypted[:fileIvSize], iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted[fileIvSize:], plaintext)

	mac := hmac.New(sha256.New, key)
	mac.Write(encrypted)
	return mac.Sum(encrypted), nil
}

func isHMACValid(passphrase []byte, content []byte) bool {
	key, err := kdf(passphrase, content[:fileIvSize])
	if err != nil {
		return false
	}
	var payload = content[:len(content)-macSize]
	var expected = content[len(content)-macSize:]

	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}

// decrypt assumes the MAC is already removed
func decrypt(passphrase []byte, content []byte) ([]byte, error) {
	var iv = content[:fileIvSize]
	var payload = content[fileIvSize:]

	key, err := kdf(passphrase, iv)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	var decrypted = make([]byte, len(payload))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, payload)
	return decrypted, nil
}
