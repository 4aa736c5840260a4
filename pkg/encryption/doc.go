// Package encryption provides the AES-CBC channel cipher.
//
// A Cipher encrypts message payloads published on a channel and decrypts
// the payloads received on it. Configure it per channel:
//
//	key, _ := encryption.GenerateKey(256)
//	c, _ := encryption.NewCipher(key)
//	ch := client.Channels.GetWithOptions("secret", realtime.ChannelOptions{Cipher: c})
//
// Ciphertext is the random 16 byte IV followed by the PKCS#7 padded payload
// encrypted in CBC mode. The message encoding records the step as
// "cipher+aes-128-cbc" or "cipher+aes-256-cbc".
package encryption
