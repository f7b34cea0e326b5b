package messaging

// BusinessProfile is the static business data shown by the informational handlers.
type BusinessProfile struct {
	Contact  Contact
	Location Location
	Hours    string
}

// DefaultProfile returns the salon's contact card, map pin and opening hours.
func DefaultProfile() BusinessProfile {
	return BusinessProfile{
		Contact: Contact{
			FormattedName: "Asesora Cosmética",
			FirstName:     "Claudia",
			LastName:      "Moreno",
			Company:       "Claudia Moreno",
			Department:    "Atención al Cliente",
			Title:         "Técnico Colorista",
			Phone:         "+573224457046",
			WaID:          "573224457046",
			Email:         "tecniclaud@gmail.com",
			URL:           "https://diagnosticosclaudiamoreno.com/",
			Street:        "Cra 31 #50 - 21",
			City:          "Bucaramanga",
		},
		Location: Location{
			Latitude:  7.114296,
			Longitude: -73.112385,
			Name:      "Claudia Moreno",
			Address:   "📌 Cra. 31 #50 - 21, Sotomayor, Bucaramanga, Santander",
		},
		Hours: "🕒 *Horario de atención*\nLunes a viernes: 8:00 a.m. - 6:00 p.m.\nSábados: 8:00 a.m. - 2:00 p.m.\nDomingos y festivos: cerrado",
	}
}
