package sso

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLProvider implements SAML 2.0 SSO
type SAMLProvider struct {
	config  *ProviderConfig
	sp      *saml2.SAMLServiceProvider
	baseURL string
}

// NewSAMLProvider creates a new SAML provider
func NewSAMLProvider(config *ProviderConfig, baseURL string) (*SAMLProvider, error) {
	if config.SAMLConfig == nil {
		return nil, fmt.Errorf("SAML config is required")
	}

	// Parse certificate
	certBlock, _ := pem.Decode([]byte(config.SAMLConfig.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	// Parse private key if provided
	var keyStore dsig.X509KeyStore
	if config.SAMLConfig.PrivateKey != "" {
		keyBlock, _ := pem.Decode([]byte(config.SAMLConfig.PrivateKey))
		if keyBlock == nil {
			return nil, fmt.Errorf("failed to decode private key PEM")
		}

		privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			// Try PKCS8 format
			pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse private key: %w", err)
			}
			var ok bool
			privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("private key is not RSA")
			}
		}

		keyStore = &dsig.TLSCertKeyStore{
			PrivateKey:  privateKey,
			Certificate: [][]byte{[]byte(config.SAMLConfig.Certificate)},
		}
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      config.SAMLConfig.SSOURL,
		IdentityProviderIssuer:      config.SAMLConfig.EntityID,
		ServiceProviderIssuer:       baseURL + "/sso/metadata",
		AssertionConsumerServiceURL: baseURL + fmt.Sprintf("/auth/sso/%s/callback", config.Name),
		SignAuthnRequests:           config.SAMLConfig.SignRequests,
		AudienceURI:                 baseURL,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}

	if config.SAMLConfig.NameIDFormat != "" {
		sp.NameIdFormat = config.SAMLConfig.NameIDFormat
	}

	return &SAMLProvider{
		config:  config,
		sp:      sp,
		baseURL: baseURL,
	}, nil
}

// GetType returns the provider type
func (p *SAMLProvider) GetType() ProviderType {
	return ProviderTypeSAML
}

// GetName returns the provider name
func (p *SAMLProvider) GetName() ProviderName {
	return p.config.ProviderName
}

// InitiateLogin redirects to the IdP for authentication
func (p *SAMLProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return fmt.Errorf("failed to build auth URL: %w", err)
	}

	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleCallback validates the SAML assertion and maps attributes onto an
// Identity.
func (p *SAMLProvider) HandleCallback(w http.ResponseWriter, r *http.Request) (*Identity, error) {
	err := r.ParseForm()
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	assertionBytes, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	assertionInfo, err := p.sp.RetrieveAssertionInfo(string(assertionBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}

	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	identity := &Identity{
		ProviderID:   p.config.ID,
		ProviderName: p.config.Name,
		Attributes:   make(map[string]string),
		SessionIndex: assertionInfo.SessionIndex,
	}

	for _, attr := range assertionInfo.Values {
		if len(attr.Values) == 0 {
			continue
		}
		identity.Attributes[attr.Name] = attr.Values[0].Value

		switch attr.Name {
		case p.config.AttributeMapping.UserID:
			identity.ExternalID = attr.Values[0].Value
		case p.config.AttributeMapping.Email:
			identity.Email = attr.Values[0].Value
		case p.config.AttributeMapping.FullName:
			identity.FullName = attr.Values[0].Value
		case p.config.AttributeMapping.FirstName:
			identity.FirstName = attr.Values[0].Value
		case p.config.AttributeMapping.LastName:
			identity.LastName = attr.Values[0].Value
		case p.config.AttributeMapping.Groups:
			// Groups may be multi-valued
			for _, v := range attr.Values {
				identity.Groups = append(identity.Groups, v.Value)
			}
		}
	}

	// Use NameID as fallback for user ID
	if identity.ExternalID == "" {
		identity.ExternalID = assertionInfo.NameID
	}

	if identity.ExternalID == "" {
		return nil, fmt.Errorf("missing user ID in SAML assertion")
	}
	if identity.Email == "" {
		return nil, fmt.Errorf("missing email in SAML assertion")
	}

	return identity, nil
}

// Logout redirects to the IdP single logout endpoint when configured
func (p *SAMLProvider) Logout(w http.ResponseWriter, r *http.Request, sessionIndex string) error {
	if p.config.SAMLConfig.SLOUrl == "" {
		// No SLO configured, the local session is revoked by the caller
		return nil
	}

	logoutRequestXML := fmt.Sprintf(`<?xml version="1.0"?>
<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
                     xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
                     ID="_%s"
                     Version="2.0"
                     IssueInstant="%s"
                     Destination="%s">
  <saml:Issuer>%s</saml:Issuer>
  <saml:NameID Format="urn:oasis:names:tc:SAML:2.0:nameid-format:transient"></saml:NameID>
  <samlp:SessionIndex>%s</samlp:SessionIndex>
</samlp:LogoutRequest>`,
		generateID(),
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		p.config.SAMLConfig.SLOUrl,
		p.sp.ServiceProviderIssuer,
		sessionIndex)

	encodedRequest := base64.StdEncoding.EncodeToString([]byte(logoutRequestXML))
	logoutURL, err := url.Parse(p.config.SAMLConfig.SLOUrl)
	if err != nil {
		return fmt.Errorf("invalid SLO URL: %w", err)
	}

	query := logoutURL.Query()
	query.Set("SAMLRequest", encodedRequest)
	logoutURL.RawQuery = query.Encode()

	http.Redirect(w, r, logoutURL.String(), http.StatusFound)
	return nil
}

// generateID generates a random ID for SAML requests
func generateID() string {
	b := make([]byte, 20)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// ValidateConfig validates the SAML configuration
func (p *SAMLProvider) ValidateConfig() error {
	if p.config.SAMLConfig == nil {
		return fmt.Errorf("SAML config is required")
	}

	cfg := p.config.SAMLConfig

	if cfg.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if cfg.SSOURL == "" {
		return fmt.Errorf("sso_url is required")
	}
	if cfg.Certificate == "" {
		return fmt.Errorf("certificate is required")
	}

	// Validate certificate format
	block, _ := pem.Decode([]byte(cfg.Certificate))
	if block == nil {
		return fmt.Errorf("invalid certificate PEM format")
	}

	_, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("invalid certificate: %w", err)
	}

	if cfg.PrivateKey != "" {
		keyBlock, _ := pem.Decode([]byte(cfg.PrivateKey))
		if keyBlock == nil {
			return fmt.Errorf("invalid private key PEM format")
		}
	}

	return nil
}

// GetMetadata returns the service provider metadata document
func (p *SAMLProvider) GetMetadata() ([]byte, error) {
	metadataXML := fmt.Sprintf(`<?xml version="1.0"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
                     entityID="%s">
  <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
                                 Location="%s"
                                 index="1"/>
  </md:SPSSODescriptor>
</md:EntityDescriptor>`,
		p.sp.ServiceProviderIssuer,
		p.sp.AssertionConsumerServiceURL)

	return []byte(metadataXML), nil
}
