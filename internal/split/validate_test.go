package split

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validate", func() {
	owing := func(amounts ...float64) []Individual {
		people := make([]Individual, len(amounts))
		for i, a := range amounts {
			people[i] = Individual{Name: "P", Owed: a}
		}
		return people
	}

	DescribeTable("tolerance boundary",
		func(amounts []float64, valid bool, difference float64) {
			result := Validate(owing(amounts...), 100.00, 0.02)
			Expect(result.IsValid).To(Equal(valid))
			Expect(result.Difference).To(Equal(difference))
		},
		Entry("exact", []float64{50, 50}, true, 0.0),
		Entry("two cents over", []float64{50.01, 50.01}, true, 0.02),
		Entry("two cents under", []float64{49.99, 49.99}, true, 0.02),
		Entry("three cents over", []float64{50.02, 50.01}, false, 0.03),
		Entry("three cents under", []float64{49.98, 49.99}, false, 0.03),
	)

	It("uses zero tolerance when given a negative one", func() {
		Expect(Validate(owing(100.01), 100, -1).IsValid).To(BeFalse())
		Expect(Validate(owing(100), 100, -1).IsValid).To(BeTrue())
	})

	It("reports an empty allocation against a positive total as invalid", func() {
		result := Validate(nil, 10, DefaultTolerance)
		Expect(result.IsValid).To(BeFalse())
		Expect(result.Difference).To(Equal(10.0))
	})

	It("accepts an even split", func() {
		people := Even(100, 3, []string{"Alex", "Sam", "Jo"})
		Expect(Validate(people, 100, 0)).To(Equal(Validation{IsValid: true, Difference: 0}))
	})
})
