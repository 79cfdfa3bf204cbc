package pdf

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"go.mozilla.org/pkcs7"
)

// CMSSigner returns a SignFunc producing a detached SHA-256 PKCS#7 SignedData
// that carries only the signer certificate.
func CMSSigner(cert *x509.Certificate, key crypto.PrivateKey) SignFunc {
	return func(data []byte) ([]byte, error) {
		sd, err := pkcs7.NewSignedData(data)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize signed data: %w", err)
		}
		sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
		if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
			return nil, fmt.Errorf("failed to add signer: %w", err)
		}
		sd.Detach()
		der, err := sd.Finish()
		if err != nil {
			return nil, fmt.Errorf("failed to finish signed data: %w", err)
		}
		return der, nil
	}
}
