package store

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("genRetrainDataID", func() {
	It("embeds the timestamp and is unique across calls", func() {
		id1 := genRetrainDataID(1_000_000)
		id2 := genRetrainDataID(1_000_000)

		Expect(id1).To(HavePrefix("1000000-"))
		Expect(id2).To(HavePrefix("1000000-"))
		Expect(id1).NotTo(Equal(id2))
	})
})

var _ = Describe("parseArrivalFromLinkKey", func() {
	It("extracts the timestamp from an app,timestamp key", func() {
		arrival, ok := parseArrivalFromLinkKey("my-app,1500000")
		Expect(ok).To(BeTrue())
		Expect(arrival).To(BeEquivalentTo(1_500_000))
	})

	It("rejects keys with no delimiter", func() {
		_, ok := parseArrivalFromLinkKey("malformed")
		Expect(ok).To(BeFalse())
	})

	It("rejects keys with a non-numeric timestamp", func() {
		_, ok := parseArrivalFromLinkKey("my-app,not-a-number")
		Expect(ok).To(BeFalse())
	})
})
