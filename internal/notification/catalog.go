package notification

// catalogItem is one entry in a rotation category.
type catalogItem struct {
	Title   string
	Message string
}

// catalogCategory groups related tips; categories are drawn by weight.
type catalogCategory struct {
	Name   string
	Kind   Kind
	Weight float64
	Items  []catalogItem
}

// catalog is the fixed rotation the background emitter draws from. The four
// categories are equally weighted.
var catalog = []catalogCategory{
	{
		Name:   "treatment_tips",
		Kind:   KindInfo,
		Weight: 0.25,
		Items: []catalogItem{
			{"New Treatment Available", "Updated organic treatment methods for leaf blight are now available."},
			{"Seasonal Treatment Reminder", "Time to review your crop protection strategies for the upcoming season."},
			{"Treatment Best Practices", "Learn about the latest eco-friendly pest control methods."},
			{"Treatment Schedule Update", "Optimal timing for preventive treatments has been updated."},
			{"New Research Findings", "Recent studies show improved efficacy of combined treatments."},
		},
	},
	{
		Name:   "farmer_updates",
		Kind:   KindSuccess,
		Weight: 0.25,
		Items: []catalogItem{
			{"Farmer Community Update", "New farming techniques being discussed in your local community."},
			{"Connect with Experts", "Agricultural experts are available for consultation in your area."},
			{"Community Achievement", "Local farmers reported increased yield using new methods."},
			{"Knowledge Sharing Session", "Join the upcoming virtual meetup on sustainable farming."},
			{"Success Story", "See how a local farmer overcame common crop challenges."},
		},
	},
	{
		Name:   "disease_alerts",
		Kind:   KindWarning,
		Weight: 0.25,
		Items: []catalogItem{
			{"Disease Alert", "Increased risk of fungal infections due to current weather conditions."},
			{"New Research Available", "Latest findings on preventing common crop diseases added to the library."},
			{"Regional Disease Update", "New disease patterns observed in neighboring farming areas."},
			{"Prevention Tips", "Updated guidelines for protecting crops during high-risk periods."},
			{"Early Warning", "Weather conditions favorable for disease development expected."},
		},
	},
	{
		Name:   "crop_tips",
		Kind:   KindInfo,
		Weight: 0.25,
		Items: []catalogItem{
			{"Crop Rotation Tip", "Consider rotating your crops to prevent soil depletion and reduce disease risk."},
			{"Water Conservation", "Try drip irrigation to save water and reduce disease spread in your crops."},
			{"Soil Health Tip", "Regular soil testing can help optimize your fertilization strategy."},
			{"Natural Pest Control", "Companion planting can help reduce pest problems naturally."},
			{"Seasonal Planning", "Now is the ideal time to plan your next season's crop rotation."},
		},
	},
}

// pickCategory selects a category by weighted draw. r must be in [0, 1).
// Cumulative weights are accumulated in fixed order; the first category
// whose cumulative weight reaches r wins, falling back to the first
// category when floating-point drift leaves none matching.
func pickCategory(cats []catalogCategory, r float64) catalogCategory {
	sum := 0.0
	for _, c := range cats {
		sum += c.Weight
		if r <= sum {
			return c
		}
	}
	return cats[0]
}
