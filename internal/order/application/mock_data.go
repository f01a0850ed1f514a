package application

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
)

var (
	paymentMethods = []string{"CreditCard", "PayPal", "ApplePay", "GooglePay", "BankTransfer", "DebitCard", "Swish"}
	banks          = []string{"Nordea", "SwedBank", "Barclay", "HSBC", "CitiBank", "SEB"}
	firstNames     = []string{"Anders", "Anna", "Erik", "Emma", "Johan", "Maria", "Lars", "Sara", "Nils", "Astrid", "Gustaf", "Ingrid"}
	lastNames      = []string{"Andersson", "Johansson", "Karlsson", "Nilsson", "Eriksson", "Larsson", "Olsson", "Persson", "Svensson", "Gustafsson"}
	cities         = []string{"Stockholm", "Göteborg", "Malmö", "Uppsala", "Västerås", "Örebro", "Linköping", "Helsingborg", "Jönköping", "Norrköping"}
	streets        = []string{"Drottninggatan", "Storgatan", "Kungsgatan", "Biblioteksgatan", "Hamngatan", "Vasagatan", "Sveavägen", "Östermalmsgatan"}
)

func pick(rng *rand.Rand, list []string) string {
	return list[rng.IntN(len(list))]
}

// randomCustomer 返回 CUST-100 至 CUST-998 及对应邮箱
func randomCustomer(rng *rand.Rand) (id, email string) {
	id = fmt.Sprintf("CUST-%d", 100+rng.IntN(899))
	return id, "customer." + strings.ToLower(id) + "@example.se"
}

func randomShippingAddress(rng *rand.Rand) domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName:  pick(rng, firstNames),
		LastName:   pick(rng, lastNames),
		Street:     fmt.Sprintf("%s %d", pick(rng, streets), 1+rng.IntN(149)),
		City:       pick(rng, cities),
		PostalCode: fmt.Sprintf("%d %d", 100+rng.IntN(899), 10+rng.IntN(89)),
		Country:    "SE",
	}
}

// paymentProvider 支付方式到服务商的映射，银行类随机选择
func paymentProvider(rng *rand.Rand, method string) string {
	switch method {
	case "CreditCard":
		return "Stripe"
	case "DebitCard", "BankTransfer":
		return pick(rng, banks)
	case "Swish":
		return "Nordea"
	case "PayPal":
		return "PayPal"
	case "ApplePay":
		return "Apple"
	case "GooglePay":
		return "Google"
	default:
		return "Unknown"
	}
}
