package vocab

// Default returns the built-in Philippine member-directory vocabulary,
// finalized and ready for lookups.
func Default() *Vocabulary {
	v := &Vocabulary{
		Categories: []Category{
			{
				Name: "Legal",
				Keywords: []string{
					"lawyer", "attorney", "atty", "counsel", "advocate", "legal",
					"law", "litigation", "notary", "prosecutor", "judge", "paralegal",
				},
				HighConfidence: []string{"lawyer", "attorney", "atty"},
				Specializations: map[string][]string{
					"family law":      {"family", "divorce", "custody", "marriage", "annulment", "adoption"},
					"corporate law":   {"corporate", "business", "commercial", "sec", "incorporation"},
					"criminal law":    {"criminal", "defense", "prosecution"},
					"labor law":       {"labor", "employment", "nlrc"},
					"real estate law": {"land", "title", "property dispute"},
					"tax law":         {"tax", "bir"},
				},
			},
			{
				Name: "Medical",
				Keywords: []string{
					"doctor", "physician", "medical", "medicine", "surgeon",
					"nurse", "dentist", "dds", "clinic", "hospital", "health",
					"pediatrician", "cardiologist", "dermatologist",
				},
				HighConfidence: []string{"doctor", "physician", "surgeon"},
				Specializations: map[string][]string{
					"cardiology":        {"heart", "cardiac", "cardio", "cardiologist"},
					"pediatrics":        {"children", "child", "pedia", "pediatrician"},
					"dermatology":       {"skin", "derma", "dermatologist"},
					"orthopedics":       {"bone", "joint", "ortho"},
					"obstetrics":        {"pregnancy", "obgyn", "gyne"},
					"general dentistry": {"teeth", "tooth", "dental", "dentist"},
				},
			},
			{
				Name: "Engineering",
				Keywords: []string{
					"engineer", "engineering", "architect", "construction",
					"civil", "mechanical", "electrical", "structural", "geodetic",
				},
				HighConfidence: []string{"engineer", "architect"},
				Specializations: map[string][]string{
					"civil engineering":      {"civil", "structural", "construction", "infrastructure"},
					"electrical engineering": {"electrical", "power", "electronics"},
					"mechanical engineering": {"mechanical", "hvac", "automotive"},
				},
			},
			{
				Name: "Business",
				Keywords: []string{
					"manager", "executive", "ceo", "cfo", "coo", "president",
					"entrepreneur", "businessman", "sales", "marketing", "finance",
					"accounting", "accountant", "cpa", "banker", "banking", "auditor",
				},
				HighConfidence: []string{"ceo", "cfo", "entrepreneur", "cpa"},
				Specializations: map[string][]string{
					"accounting": {"accounting", "audit", "cpa", "tax", "bookkeeping"},
					"marketing":  {"marketing", "advertising", "brand"},
					"finance":    {"finance", "investment", "banking", "loans"},
				},
			},
			{
				Name: "IT/Technology",
				Keywords: []string{
					"developer", "programmer", "software", "tech", "technology",
					"systems", "analyst", "data", "devops", "cybersecurity",
				},
				HighConfidence: []string{"developer", "programmer"},
				Specializations: map[string][]string{
					"software development": {"software", "programmer", "web", "mobile", "app"},
					"data":                 {"data", "analytics", "database"},
					"security":             {"security", "cybersecurity", "infosec"},
				},
			},
			{
				Name: "Education",
				Keywords: []string{
					"teacher", "professor", "educator", "instructor", "school",
					"university", "academic", "dean", "tutor",
				},
				HighConfidence: []string{"professor", "teacher"},
			},
			{
				Name: "Government",
				Keywords: []string{
					"government", "public", "mayor", "councilor", "barangay",
					"senator", "congressman",
				},
				HighConfidence: []string{"mayor", "senator"},
			},
			{
				Name: "Real Estate",
				Keywords: []string{
					"realtor", "broker", "property", "realty", "leasing",
					"condo", "subdivision",
				},
				HighConfidence: []string{"realtor", "broker"},
			},
		},
		LocationAliases: map[string]string{
			"qc":                "Quezon City",
			"quezon":            "Quezon City",
			"makati cbd":        "Makati",
			"bgc":               "Taguig",
			"the fort":          "Taguig",
			"fort bonifacio":    "Taguig",
			"ortigas":           "Pasig",
			"mandaluyong city":  "Mandaluyong",
			"pasay city":        "Pasay",
			"manila city":       "Manila",
			"metro manila":      "Metro Manila",
			"ncr":               "Metro Manila",
			"greenhills":        "San Juan",
			"alabang":           "Muntinlupa",
			"eastwood":          "Quezon City",
			"cubao":             "Quezon City",
		},
		Regions: map[string][]string{
			"Metro Manila": {
				"Manila", "Quezon City", "Makati", "Taguig", "Pasig",
				"Mandaluyong", "Pasay", "Parañaque", "Caloocan", "Marikina",
				"Muntinlupa", "Las Piñas", "Valenzuela", "Malabon", "Navotas",
				"San Juan", "Pateros", "Metro Manila",
			},
			"Central Luzon": {
				"Bulacan", "Malolos", "Meycauayan", "San Jose del Monte",
				"Pampanga", "Angeles", "San Fernando", "Tarlac", "Olongapo",
				"Cabanatuan", "Balanga",
			},
			"Calabarzon": {
				"Cavite", "Bacoor", "Imus", "Dasmariñas", "Laguna", "Calamba",
				"Santa Rosa", "Biñan", "Batangas", "Lipa", "Rizal", "Antipolo",
				"Cainta", "Lucena",
			},
			"Visayas": {
				"Cebu", "Cebu City", "Mandaue", "Lapu-Lapu", "Iloilo",
				"Bacolod", "Tacloban",
			},
			"Mindanao": {
				"Davao", "Davao City", "Cagayan de Oro", "Zamboanga",
				"General Santos", "Butuan",
			},
		},
		UrgencyTerms: []string{
			"urgent", "urgently", "asap", "emergency", "immediately",
			"need now", "right away",
		},
		CompanyDomains: map[string]string{
			"petron.com":         "Petron Corporation",
			"chevrontexaco.com":  "Chevron Texaco",
			"ccbpi.com":          "Coca-Cola Beverages Philippines",
			"firstgas.com.ph":    "First Gas Holdings",
			"sun.com.ph":         "Sun Cellular",
			"mozcom.com":         "Mozcom",
			"pilnet.com":         "Philippine Network Foundation",
			"meralco.com.ph":     "Meralco",
			"pldt.com.ph":        "PLDT",
			"bpi.com.ph":         "Bank of the Philippine Islands",
			"sanmiguel.com.ph":   "San Miguel Corporation",
		},
		PersonalDomains: []string{
			"gmail.com", "yahoo.com", "yahoo.com.ph", "hotmail.com",
			"outlook.com", "icloud.com", "edsamail.com.ph",
		},
		SectorCategories: map[string]string{
			"medical":     "Medical",
			"educational": "Education",
			"government":  "Government",
		},
	}
	v.Finalize()
	return v
}
