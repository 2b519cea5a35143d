package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhone_Formats(t *testing.T) {
	assert.Equal(t, "5551234567", Phone("(555) 123-4567"))
	assert.Equal(t, "5551234567", Phone("+1 555-123-4567"))
	assert.Equal(t, "5551234567", Phone("1-555-123-4567"))
	assert.Equal(t, "5551234567", Phone("555.123.4567"))
}

func TestPhone_Invalid(t *testing.T) {
	assert.Equal(t, "", Phone(""))
	assert.Equal(t, "", Phone("123-4567"))
	assert.Equal(t, "", Phone("2-555-123-4567"))
	assert.Equal(t, "", Phone("555-123-4567 ext 12"))
	assert.Equal(t, "", Phone("call us"))
}

func TestPhone_Idempotent(t *testing.T) {
	inputs := []string{
		"(555) 123-4567", "+1 555-123-4567", "15551234567", "555", "", "1 (800) FLOWERS",
		"+44 20 7946 0958", "11111111111",
	}
	for _, in := range inputs {
		once := Phone(in)
		assert.Equal(t, once, Phone(once), "input %q", in)
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "info@acmehvac.com", Email("  Info@AcmeHVAC.com "))
	assert.Equal(t, "", Email("   "))
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "", ExtractDomain("a@gmail.com"))
	assert.Equal(t, "", ExtractDomain("Owner@Yahoo.com"))
	assert.Equal(t, "acmehvac.com", ExtractDomain("a@acmehvac.com"))
	assert.Equal(t, "acmehvac.com", ExtractDomain(" Sales@AcmeHVAC.com"))
	assert.Equal(t, "", ExtractDomain("no-at-sign.com"))
	assert.Equal(t, "", ExtractDomain("trailing@"))
	assert.Equal(t, "", ExtractDomain(""))
}

func TestWebsiteDomain(t *testing.T) {
	assert.Equal(t, "acmehvac.com", WebsiteDomain("https://www.AcmeHVAC.com/contact?x=1"))
	assert.Equal(t, "acmehvac.com", WebsiteDomain("acmehvac.com"))
	assert.Equal(t, "acmehvac.com", WebsiteDomain("http://acmehvac.com:8080"))
	assert.Equal(t, "acmehvac.com", WebsiteDomain("sales@acmehvac.com"))
	assert.Equal(t, "", WebsiteDomain("https://gmail.com"))
	assert.Equal(t, "", WebsiteDomain("localhost"))
	assert.Equal(t, "", WebsiteDomain(""))
}

func TestCompanyName_Suffixes(t *testing.T) {
	assert.Equal(t, "abc solar", CompanyName("ABC Solar LLC"))
	assert.Equal(t, "abc solar", CompanyName("ABC Solar, LLC"))
	assert.Equal(t, "abc solar", CompanyName("ABC Solar, L.L.C."))
	assert.Equal(t, "abc solar", CompanyName("ABC Solar Inc."))
	assert.Equal(t, "abc solar", CompanyName("ABC Solar Solutions, Inc"))
	assert.Equal(t, "abc solar", CompanyName("ABC Solar Contracting Corp"))
	assert.Equal(t, "abc solar", CompanyName("abc solar"))
}

func TestCompanyName_Punctuation(t *testing.T) {
	assert.Equal(t, "smith and jones plumbing", CompanyName("Smith & Jones Plumbing"))
	assert.Equal(t, "joes air", CompanyName("Joe's Air"))
	assert.Equal(t, "a 1 roofing", CompanyName("A-1 Roofing"))
	assert.Equal(t, "cafe electric", CompanyName("Café   Electric"))
}

func TestCompanyName_Empty(t *testing.T) {
	assert.Equal(t, "", CompanyName(""))
	assert.Equal(t, "", CompanyName("   "))
	assert.Equal(t, "", CompanyName("!!!"))
}

func TestCompanyName_DoesNotStripWholeName(t *testing.T) {
	assert.Equal(t, "group", CompanyName("Group"))
	assert.Equal(t, "the", CompanyName("The Group"))
}

func TestState(t *testing.T) {
	assert.Equal(t, "FL", State("fl"))
	assert.Equal(t, "FL", State(" Florida "))
	assert.Equal(t, "NY", State("new  york"))
	assert.Equal(t, "", State(""))
	assert.Equal(t, "ZZ", State("zz"))
}

func TestLicenseTypes(t *testing.T) {
	assert.Equal(t, []string{"CAC", "CFC", "EC"}, LicenseTypes("cac; CFC, ec"))
	assert.Equal(t, []string{"CAC"}, LicenseTypes("CAC|cac"))
	assert.Nil(t, LicenseTypes(""))
	assert.Nil(t, LicenseTypes(" , ;"))
}
