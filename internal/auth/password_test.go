package auth

import (
	"strings"

	"github.com/frahmantamala/hospital-auth/internal"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = ginkgo.Describe("Hasher", func() {
	ginkgo.It("produces salted argon2id hashes that verify", func() {
		first, err := testHasher.Hash("s3cret-pass")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		second, err := testHasher.Hash("s3cret-pass")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(first).To(gomega.HavePrefix("$argon2id$v=19$m=1024,t=1,p=1$"))
		gomega.Expect(first).NotTo(gomega.Equal(second))
		gomega.Expect(testHasher.Matches(first, "s3cret-pass")).To(gomega.BeTrue())
		gomega.Expect(testHasher.Matches(first, "s3cret-pasS")).To(gomega.BeFalse())
		gomega.Expect(testHasher.Matches(first, "")).To(gomega.BeFalse())
	})

	ginkgo.It("verifies bcrypt hashes regardless of the primary scheme", func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(testHasher.Matches(string(hash), "legacy-pass")).To(gomega.BeTrue())
		gomega.Expect(testHasher.Matches(string(hash), "other")).To(gomega.BeFalse())
	})

	ginkgo.It("writes bcrypt when configured to", func() {
		h := NewHasher(internal.SecurityConfig{PasswordHasher: "bcrypt", BCryptCost: bcrypt.MinCost})

		hash, err := h.Hash("bcrypt-pass")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(strings.HasPrefix(hash, "$2")).To(gomega.BeTrue())
		gomega.Expect(h.Matches(hash, "bcrypt-pass")).To(gomega.BeTrue())
	})

	ginkgo.It("never matches plain-text or malformed stored values", func() {
		gomega.Expect(testHasher.Matches("plaintext", "plaintext")).To(gomega.BeFalse())
		gomega.Expect(testHasher.Matches("$argon2id$v=19$broken", "x")).To(gomega.BeFalse())
		gomega.Expect(testHasher.Matches("$argon2id$v=18$m=1024,t=1,p=1$AAAA$AAAA", "x")).To(gomega.BeFalse())
	})
})
